package explain

// Fixed bilingual answers. The wording is user-facing and must stay stable.

const cannedNextSteps = "Message full-a anuppunga. Link/OTP share pannaadheenga."

// TooShort is returned without a model call when the input is under the
// minimum length.
func TooShort() Explanation {
	return Explanation{
		Explanation: "🟢 Simple Explanation (Tamil)\nIdhu romba kuraiyaana thagaval. Please andha message full-a anuppunga.\n" +
			"🔴 Simple Explanation (Tanglish)\nIdhu romba kuraiyaana thagaval. Please andha message full-a anuppunga.\n" +
			"🟡 Do I need to worry?\nIppo vendam.\n" +
			"🔵 What should I do now?\nMessage full text / screenshot-la irukura ellaa varigalum anuppunga.\n" +
			"🟣 Reply Suggestions (Tamil / Tanglish / Simple English)\nIdhula edhuvum seyyave vendam.",
		Urgency:   UrgencyLow,
		NextSteps: cannedNextSteps,
	}
}

// FailSafe is returned when the model's answer cannot be parsed.
func FailSafe() Explanation {
	return Explanation{
		Explanation: "🟢 Simple Explanation (Tamil)\nIdha parse panna mudiyala. Message konjam clear-a anuppunga.\n" +
			"🔴 Simple Explanation (Tanglish)\nIdha parse panna mudiyala. Message konjam clear-a anuppunga.\n" +
			"🟡 Do I need to worry?\nIppo vendam.\n" +
			"🔵 What should I do now?\nMessage full text copy-paste pannunga illa screenshot anuppunga.\n" +
			"🟣 Reply Suggestions (Tamil / Tanglish / Simple English)\nIdhula edhuvum seyyave vendam.",
		Urgency:   UrgencyLow,
		NextSteps: cannedNextSteps,
	}
}

// Unreadable is returned when an uploaded file yields too little text to
// explain.
func Unreadable() Explanation {
	return Explanation{
		Explanation: "🟢 Simple Explanation (Tamil)\nIndha file-la text edukkave mudiyala. " +
			"Photo / PDF clear-a irukanum.\n" +
			"🟡 Do I need to worry?\nIppo vendam.\n" +
			"🔵 What should I do now?\nClear screenshot / readable PDF anuppunga.\n" +
			"🟣 Reply Suggestions (Tamil / Tanglish / Simple English)\nIdhula edhuvum seyyave vendam.",
		Urgency:   UrgencyLow,
		NextSteps: "Clear-a irukura file/screenshot anuppunga. Link/OTP share pannaadheenga.",
	}
}
