package dto

type AskRequest struct {
	Text       string `json:"text" binding:"required"`
	LicenseKey string `json:"licenseKey" binding:"required"`
	ClientID   string `json:"clientId" binding:"required"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}
