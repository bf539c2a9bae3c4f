package auth

// Page copy keys.
const (
	MessageDeniedTitle  = "view.denied.title"
	MessagePendingTitle = "view.pending.title"
	MessageBackHome     = "view.back_home"
	MessageSignOut      = "view.sign_out"
	MessageResetSent    = "view.reset_sent"
)

// MessageCatalog maps text codes to user-facing copy per locale.
type MessageCatalog map[string]map[string]string

// DefaultMessages is the built-in catalog.
var DefaultMessages = MessageCatalog{
	LocaleEnglish: {
		string(AuthInvalidCredentials): "Incorrect email or password.",
		string(AuthEmailNotConfirmed):  "Please confirm your email address before signing in.",
		string(AuthRateLimited):        "Too many attempts. Please wait a moment and try again.",
		string(AuthAlreadyRegistered):  "This email address is already registered.",
		string(AuthWeakPassword):       "Password must be at least 6 characters.",
		string(AuthInvalidEmail):       "Please enter a valid email address.",
		string(AuthUnknown):            "Something went wrong. Please try again.",

		string(FetchProfileMissing):   "Your user profile could not be found. Please sign out and sign in again.",
		string(FetchPolicyRejected):   "Your account is not allowed to read this data. Please contact an administrator.",
		string(FetchPermissionDenied): "You do not have permission to view this page.",
		string(FetchDatabase):         "A database error occurred. Please try again later.",
		string(FetchTransport):        "Unable to reach the server. Check your connection and try again.",
		string(FetchTimeout):          "The permission check timed out. Please reload the page.",

		TextCodeInvalidRole:          "Your account has an invalid role. Please contact an administrator.",
		TextCodeInvalidStatus:        "Your account has an invalid status. Please contact an administrator.",
		TextCodeNotAuthenticated:     "Please sign in to continue.",
		TextCodeForbidden:            "You do not have permission to perform this action.",
		TextCodeConfirmationRequired: "This action needs to be confirmed.",
		TextCodeUserNotPending:       "This user is not waiting for approval.",
		TextCodeConfigMissing:        "The service is not configured.",
		TextCodeInvalidInput:         "Please check the submitted fields.",
		TextCodeInvalidTransition:    "This status change is not allowed.",
		TextCodeBatchEmpty:           "Select at least one user.",
		TextCodeBatchTooLarge:        "Too many users selected at once.",

		DecisionDeniedUnapproved.String():       "Your account is waiting for administrator approval.",
		DecisionDeniedInsufficientRole.String(): "You do not have permission to access the admin panel.",

		MessageDeniedTitle:  "Access denied",
		MessagePendingTitle: "Awaiting approval",
		MessageBackHome:     "Back to home",
		MessageSignOut:      "Sign out",
		MessageResetSent:    "If the address is registered, a reset link is on its way.",
	},
	LocaleTraditionalChinese: {
		string(AuthInvalidCredentials): "電子郵件或密碼錯誤",
		string(AuthEmailNotConfirmed):  "請先確認您的電子郵件地址",
		string(AuthRateLimited):        "請求過於頻繁，請稍後再試",
		string(AuthAlreadyRegistered):  "此電子郵件已被註冊",
		string(AuthWeakPassword):       "密碼至少需要 6 個字元",
		string(AuthInvalidEmail):       "請輸入有效的電子郵件地址",
		string(AuthUnknown):            "發生錯誤，請稍後再試",

		string(FetchProfileMissing):   "找不到用戶資料，請重新登入",
		string(FetchPolicyRejected):   "資料存取政策拒絕了此請求，請聯繫管理員",
		string(FetchPermissionDenied): "您沒有權限檢視此頁面",
		string(FetchDatabase):         "資料庫發生錯誤，請稍後再試",
		string(FetchTransport):        "無法連線至伺服器，請檢查網路連線",
		string(FetchTimeout):          "權限檢查逾時，請重新整理頁面",

		TextCodeInvalidRole:          "帳號角色無效，請聯繫管理員",
		TextCodeInvalidStatus:        "帳號狀態無效，請聯繫管理員",
		TextCodeNotAuthenticated:     "請先登入",
		TextCodeForbidden:            "您沒有權限執行此操作",
		TextCodeConfirmationRequired: "此操作需要確認",
		TextCodeUserNotPending:       "此用戶不在待審核狀態",
		TextCodeConfigMissing:        "服務尚未設定",
		TextCodeInvalidInput:         "請檢查輸入的欄位",
		TextCodeInvalidTransition:    "不允許此狀態變更",
		TextCodeBatchEmpty:           "請至少選擇一位用戶",
		TextCodeBatchTooLarge:        "一次選擇的用戶過多",

		DecisionDeniedUnapproved.String():       "您的帳號正在等待管理員審核",
		DecisionDeniedInsufficientRole.String(): "您沒有權限存取管理面板",

		MessageDeniedTitle:  "無法存取",
		MessagePendingTitle: "等待審核",
		MessageBackHome:     "返回首頁",
		MessageSignOut:      "登出",
		MessageResetSent:    "若此電子郵件已註冊，重設連結將寄送至您的信箱",
	},
}

// Lookup returns the message for code, falling back to English then fallback.
func (c MessageCatalog) Lookup(locale, code, fallback string) string {
	if msgs, ok := c[locale]; ok {
		if msg, ok := msgs[code]; ok {
			return msg
		}
	}
	if msgs, ok := c[LocaleEnglish]; ok {
		if msg, ok := msgs[code]; ok {
			return msg
		}
	}
	return fallback
}

// UserMessage renders err for an end user. Unknown errors get the generic
// AuthUnknown copy, never the raw provider text.
func (c MessageCatalog) UserMessage(locale string, err error) string {
	if err == nil {
		return ""
	}
	generic := c.Lookup(locale, string(AuthUnknown), "Something went wrong.")
	code := TextCodeOf(err)
	if code == "" {
		return generic
	}
	return c.Lookup(locale, code, generic)
}
