package domain

const introEnglish = `Welcome to the Authorized Al-Fiqh Assistant.

I am strictly limited to providing information and verbatim fatwa records from ONLY these authorized sources:
1. Jamia Binoria (banuri.edu.pk)
2. Darul Uloom Karachi (darululoomkarachi.edu.pk)
3. Darul Ifta Deoband (darulifta-deoband.com)
4. Suffah PK (suffahpk.com)
5. Darul Ifta (darulifta.info)

You can now use the "Reply" feature to anchor questions to specific points or fatwas.`

const introUrdu = `مجاز الفقہ اسسٹنٹ میں خوش آمدید۔

میں صرف ان مستند ذرائع سے معلومات اور فتویٰ فراہم کرنے تک محدود ہوں:
1. جامعہ بنوریہ (banuri.edu.pk)
2. دارالعلوم کراچی (darululoomkarachi.edu.pk)
3. دارالافتاء دیوبند (darulifta-deoband.com)
4. صفہ پی کے (suffahpk.com)
5. دارالافتاء (darulifta.info)

اب آپ مخصوص نکات یا فتاویٰ کے حوالے کے لیے "Reply" کا فیچر استعمال کر سکتے ہیں۔`

// IntroText returns the introductory message text for lang.
func IntroText(lang Language) string {
	if lang == LanguageUrdu {
		return introUrdu
	}
	return introEnglish
}
