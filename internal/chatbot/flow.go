package chatbot

import (
	"fmt"
	"strings"
)

// option is one entry of a menu step.
type option struct {
	numeral  string
	keywords []string
	label    string
	next     Step
}

// stepSpec describes how a step reads input.
type stepSpec struct {
	header  string
	options []option // empty for free-text steps
	// record stores the chosen label, or the raw text on free-text steps.
	record func(a *Answers, value string)
	// next is the successor of a free-text step.
	next Step
}

const (
	labelBuy  = "شراء تذاكر"
	labelSell = "بيع تذاكر"

	labelBefore = "قبل الفعالية"
	labelAfter  = "بعد الفعالية"
)

func timingOptions(before, after Step) []option {
	return []option{
		{numeral: "1", keywords: []string{"قبل", "before"}, label: labelBefore, next: before},
		{numeral: "2", keywords: []string{"بعد", "after"}, label: labelAfter, next: after},
	}
}

// flow is the transition table. welcome and completed are handled by the machine.
var flow = map[Step]*stepSpec{
	StepMainChoice: {
		header: "كيف يمكننا مساعدتك؟",
		options: []option{
			{numeral: "1", keywords: []string{"شراء", "اشتري", "أشتري", "buy"}, label: labelBuy, next: StepBuyTiming},
			{numeral: "2", keywords: []string{"بيع", "ابيع", "أبيع", "sell"}, label: labelSell, next: StepSellTiming},
		},
		record: func(a *Answers, v string) { a.Choice = v },
	},
	StepBuyTiming: {
		header:  "هل استفسارك قبل الفعالية أم بعدها؟",
		options: timingOptions(StepBuyEventName, StepBuyEventType),
		record:  func(a *Answers, v string) { a.Timing = v },
	},
	StepBuyEventName: {
		header: "ما اسم الفعالية التي تريد شراء تذاكرها؟",
		record: func(a *Answers, v string) { a.EventName = v },
		next:   StepCompleted,
	},
	StepBuyEventType: {
		header: "ما نوع الفعالية؟",
		options: []option{
			{numeral: "1", keywords: []string{"حفل", "concert"}, label: "حفلات", next: StepGetEmail},
			{numeral: "2", keywords: []string{"مباري", "مباراة", "رياض", "match", "sport"}, label: "مباريات", next: StepGetEmail},
			{numeral: "3", keywords: []string{"مسرح", "عرض", "عروض", "theatre", "theater", "show"}, label: "مسرحيات وعروض", next: StepGetEmail},
		},
		record: func(a *Answers, v string) { a.EventType = v },
	},
	StepGetEmail: {
		header: "فضلاً أرسل بريدك الإلكتروني ليتواصل معك فريق الدعم.",
		record: func(a *Answers, v string) { a.Email = v },
		next:   StepCompleted,
	},
	StepSellTiming: {
		header:  "هل استفسارك قبل الفعالية أم بعدها؟",
		options: timingOptions(StepSellBeforeOptions, StepSellAfterOptions),
		record:  func(a *Answers, v string) { a.Timing = v },
	},
	StepSellBeforeOptions: {
		header: "اختر موضوع استفسارك:",
		options: []option{
			{numeral: "1", keywords: []string{"اعرض", "أعرض", "list"}, label: "عرض التذاكر للبيع", next: StepCompleted},
			{numeral: "2", keywords: []string{"سعر", "تسعير", "price"}, label: "تسعير التذاكر", next: StepCompleted},
			{numeral: "3", keywords: []string{"نقل", "تحويل", "transfer"}, label: "نقل التذاكر", next: StepCompleted},
			{numeral: "4", keywords: []string{"استلام", "سحب", "payout"}, label: "طرق استلام المبلغ", next: StepCompleted},
			{numeral: "5", keywords: []string{"إلغاء", "الغاء", "cancel"}, label: "إلغاء العرض", next: StepCompleted},
			{numeral: "6", keywords: []string{"موظف", "تحدث", "agent"}, label: "التحدث مع موظف", next: StepGetEmail},
		},
		record: func(a *Answers, v string) { a.Option = v },
	},
	StepSellAfterOptions: {
		header: "اختر موضوع استفسارك:",
		options: []option{
			{numeral: "1", keywords: []string{"مبلغ", "فلوس", "payment"}, label: "لم يصلني المبلغ", next: StepGetEmail},
			{numeral: "2", keywords: []string{"المشتري", "buyer"}, label: "المشتري لم يستلم التذاكر", next: StepGetEmail},
			{numeral: "3", keywords: []string{"إلغاء", "الغاء", "cancel"}, label: "تم إلغاء الفعالية", next: StepCompleted},
			{numeral: "4", keywords: []string{"استرجاع", "استرداد", "refund"}, label: "سياسة الاسترجاع", next: StepCompleted},
			{numeral: "5", keywords: []string{"أخرى", "اخرى", "other"}, label: "أخرى", next: StepCompleted},
		},
		record: func(a *Answers, v string) { a.Option = v },
	},
}

const (
	welcomeText = "أهلاً بك في خدمة دعم التذاكر 👋"
	doneText    = "✅ تم استلام طلبك وسيتواصل معك فريق الدعم قريباً."
	restartText = "أرسل أي رسالة لبدء طلب جديد."
)

// prompt renders the step's question and numbered menu.
func (s *stepSpec) prompt() string {
	if len(s.options) == 0 {
		return s.header
	}
	var b strings.Builder
	b.WriteString(s.header)
	for _, o := range s.options {
		fmt.Fprintf(&b, "\n%s. %s", o.numeral, o.label)
	}
	return b.String()
}

// match returns the first option whose numeral or keyword appears in input.
func (s *stepSpec) match(input string) (option, bool) {
	in := normalize(input)
	if in == "" {
		return option{}, false
	}
	for _, o := range s.options {
		if strings.Contains(in, o.numeral) {
			return o, true
		}
		for _, kw := range o.keywords {
			if strings.Contains(in, kw) {
				return o, true
			}
		}
	}
	return option{}, false
}

var arabicDigits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// normalize lowercases, trims and maps Arabic-Indic digits to ASCII.
func normalize(s string) string {
	return arabicDigits.Replace(strings.ToLower(strings.TrimSpace(s)))
}
