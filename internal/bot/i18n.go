package bot

import "strings"

const defaultLang = "en"

var messages = map[string]map[string]string{
	"en": {
		"btn_share_phone":       "📱 Share phone number",
		"btn_cancel":            "✖️ Cancel",
		"share_phone":           "Welcome to the Clinic! Please share your phone number to continue.",
		"invalid_phone":         "❌ Please share your own phone number using the button below.",
		"clients_only":          "❌ Telegram registration is available for clients only.",
		"ask_name":              "Please enter your first and last name, e.g. Ana Pérez:",
		"invalid_name":          "❌ Name must contain only letters. Try again:",
		"ask_password":          "Create a password (min 6 chars):",
		"invalid_password":      "❌ Password too short. Enter at least 6 characters:",
		"already_registered":    "✅ You are already registered. You can log in on the website using your credentials.",
		"registered_success":    "✅ Registered successfully!",
		"login_link":            "🔗 Login link (valid for 15 minutes): ",
		"not_allowed":           "❌ You are not allowed to use this command.",
		"announce_usage":        "Usage: /announce Your message here",
		"broadcast_started":     "📣 Broadcast started.",
		"cancelled":             "Registration cancelled. Send /start to begin again.",
		"session_expired":       "⌛ Registration timed out. Send /start to begin again.",
		"internal_error":        "⚠️ Something went wrong. Please try again later.",
		"help":                  "/start - register\n/cancel - cancel registration\n/announce <text> - broadcast (staff only)",
		"existing_account":      "This phone number already has a clinic account.",
		"ask_existing_password": "Enter your account password to link this chat:",
		"wrong_password":        "❌ Wrong password. Try again:",
		"too_many_attempts":     "❌ Too many wrong attempts. Send /start to try again.",
		"account_linked":        "✅ This chat is now linked to your account.",
	},
	"ru": {
		"btn_share_phone":       "📱 Поделиться номером телефона",
		"btn_cancel":            "✖️ Отменить",
		"share_phone":           "Добро пожаловать в клинику! Пожалуйста, поделитесь номером телефона для продолжения.",
		"invalid_phone":         "❌ Пожалуйста, отправьте свой номер кнопкой ниже.",
		"clients_only":          "❌ Регистрация через Telegram доступна только для клиентов.",
		"ask_name":              "Введите имя и фамилию, например: Ана Перес",
		"invalid_name":          "❌ Имя должно содержать только буквы. Попробуйте ещё раз:",
		"ask_password":          "Создайте пароль (не менее 6 символов):",
		"invalid_password":      "❌ Слишком короткий пароль. Введите минимум 6 символов:",
		"already_registered":    "✅ Вы уже зарегистрированы. Вы можете войти на сайт, используя свои данные.",
		"registered_success":    "✅ Регистрация прошла успешно!",
		"login_link":            "🔗 Ссылка для входа (действует 15 минут): ",
		"not_allowed":           "❌ У вас нет прав для этой команды.",
		"announce_usage":        "Использование: /announce Ваше сообщение",
		"broadcast_started":     "📣 Рассылка запущена.",
		"cancelled":             "Регистрация отменена. Отправьте /start, чтобы начать заново.",
		"session_expired":       "⌛ Время регистрации истекло. Отправьте /start, чтобы начать заново.",
		"internal_error":        "⚠️ Что-то пошло не так. Попробуйте позже.",
		"help":                  "/start - регистрация\n/cancel - отменить регистрацию\n/announce <текст> - рассылка (для персонала)",
		"existing_account":      "На этот номер уже есть аккаунт в клинике.",
		"ask_existing_password": "Введите пароль от аккаунта, чтобы привязать этот чат:",
		"wrong_password":        "❌ Неверный пароль. Попробуйте ещё раз:",
		"too_many_attempts":     "❌ Слишком много неверных попыток. Отправьте /start, чтобы начать заново.",
		"account_linked":        "✅ Чат привязан к вашему аккаунту.",
	},
	"uz": {
		"btn_share_phone":       "📱 Telefon raqamni ulashish",
		"btn_cancel":            "✖️ Bekor qilish",
		"share_phone":           "Klinikamizga xush kelibsiz! Davom etish uchun telefon raqamingizni ulashing.",
		"invalid_phone":         "❌ Iltimos, o'z raqamingizni quyidagi tugma orqali yuboring.",
		"clients_only":          "❌ Telegram orqali ro'yxatdan o'tish faqat mijozlar uchun mavjud.",
		"ask_name":              "Ism va familiyangizni kiriting, masalan: Ana Pérez",
		"invalid_name":          "❌ Ism faqat harflardan iborat bo'lishi kerak. Qayta urinib ko'ring:",
		"ask_password":          "Parol yarating (kamida 6 ta belgi):",
		"invalid_password":      "❌ Parol juda qisqa. Kamida 6 ta belgi kiriting:",
		"already_registered":    "✅ Siz allaqachon ro'yxatdan o'tgansiz. Sayt orqali kirish mumkin.",
		"registered_success":    "✅ Muvaffaqiyatli ro'yxatdan o'tdingiz!",
		"login_link":            "🔗 Kirish havolasi (15 daqiqa amal qiladi): ",
		"not_allowed":           "❌ Bu buyruqdan foydalanishga ruxsatingiz yo'q.",
		"announce_usage":        "Foydalanish: /announce Xabaringiz",
		"broadcast_started":     "📣 Tarqatish boshlandi.",
		"cancelled":             "Ro'yxatdan o'tish bekor qilindi. Qaytadan boshlash uchun /start yuboring.",
		"session_expired":       "⌛ Ro'yxatdan o'tish vaqti tugadi. Qaytadan boshlash uchun /start yuboring.",
		"internal_error":        "⚠️ Xatolik yuz berdi. Keyinroq urinib ko'ring.",
		"help":                  "/start - ro'yxatdan o'tish\n/cancel - bekor qilish\n/announce <matn> - tarqatish (xodimlar uchun)",
		"existing_account":      "Bu raqamda klinikada akkaunt mavjud.",
		"ask_existing_password": "Ushbu chatni bog'lash uchun akkaunt parolini kiriting:",
		"wrong_password":        "❌ Parol noto'g'ri. Qayta urinib ko'ring:",
		"too_many_attempts":     "❌ Juda ko'p noto'g'ri urinish. Qaytadan boshlash uchun /start yuboring.",
		"account_linked":        "✅ Chat akkauntingizga bog'landi.",
	},
}

// langOf выбирает язык по language_code Telegram ("ru-RU" -> "ru").
func langOf(code string) string {
	code = strings.ToLower(code)
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if _, ok := messages[code]; ok {
		return code
	}
	return defaultLang
}

func tr(lang, key string) string {
	if s, ok := messages[langOf(lang)][key]; ok {
		return s
	}
	if s, ok := messages[defaultLang][key]; ok {
		return s
	}
	return key
}
