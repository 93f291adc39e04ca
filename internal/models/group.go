package models

// GroupConfig describes one class/section: its roster source and the secret
// that gates its check-in page.
type GroupConfig struct {
	ID             string `json:"id" yaml:"id"`
	DisplayName    string `json:"name" yaml:"displayName"`
	RosterRef      string `json:"-" yaml:"roster"`
	AccessSecret   string `json:"-" yaml:"accessSecret"`
	PhotosPrefix   string `json:"-" yaml:"photosPrefix"`
	TelegramChatID int64  `json:"-" yaml:"telegramChatID"`
}
