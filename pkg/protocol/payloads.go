package protocol

import "encoding/json"

// ChannelRef is the data of messages that only name a channel.
type ChannelRef struct {
	ChannelID ID `json:"channelId"`
}

// AuthData is the identity the embedded client reports after the user
// signs in to Telegram.
type AuthData struct {
	ID             ID     `json:"id"`
	TelegramID     ID     `json:"telegramId,omitempty"`
	Phone          string `json:"phone,omitempty"`
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	Nick           string `json:"nick,omitempty"`
	Username       string `json:"username,omitempty"`
}

// UserID returns id, falling back to telegramId.
func (a AuthData) UserID() string {
	if a.ID != "" {
		return a.ID.String()
	}
	return a.TelegramID.String()
}

// UserInfo is the data of provideUserInfo. The whole payload is null when
// the embedded side has no stored user.
type UserInfo = AuthData

// LogData holds console arguments forwarded from the embedded side.
type LogData []json.RawMessage

// JoinResult reports the outcome of a join attempt.
type JoinResult struct {
	ChannelID ID     `json:"channelId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Method    string `json:"method,omitempty"`
}

// JoinStatus reports whether the user appears to be a member.
type JoinStatus struct {
	ChannelID ID     `json:"channelId"`
	IsJoined  bool   `json:"isJoined"`
	Error     string `json:"error,omitempty"`
}

// SessionReady is sent to the embedded side after a channel initialized.
type SessionReady struct {
	ChannelID   string `json:"channelId"`
	ChannelInfo any    `json:"channelInfo,omitempty"`
}

// InitFailed is sent to the embedded side after initialization failed.
type InitFailed struct {
	ChannelID  string `json:"channelId"`
	Error      string `json:"error"`
	ErrorCode  string `json:"errorCode,omitempty"`
	RetryCount int    `json:"retryCount"`
}

// TokenData carries the session token in uploadtgToken.
type TokenData struct {
	Token string `json:"token"`
}

// TabsData carries tab visibility in appTabsChanged.
type TabsData struct {
	Show bool `json:"show"`
}

// UploadToken builds the uploadtgToken command.
func UploadToken(token string) Outbound {
	return Outbound{Type: KindUploadToken, Data: TokenData{Token: token}}
}

// ToChannel builds the navigation command for channelID.
func ToChannel(channelID string) Outbound {
	return Outbound{Type: KindToChannel, Data: map[string]string{"channelId": channelID}}
}

// InitializeChannel builds the initializeChannel command.
func InitializeChannel(channelID string) Outbound {
	return Outbound{Type: KindInitializeChannel, Data: map[string]string{"channelId": channelID}}
}

// OpenSettings builds the openSettings command.
func OpenSettings() Outbound {
	return Outbound{Type: KindOpenSettings}
}

// RequestUserInfo asks the embedded side for the stored user id.
func RequestUserInfo() Outbound {
	return Outbound{Type: KindRequestUserInfo}
}

// CheckJoinStatus asks the embedded side for a membership probe.
func CheckJoinStatus(channelID, requestID string) Outbound {
	return Outbound{
		Type:      KindCheckJoinStatus,
		Data:      map[string]string{"channelId": channelID},
		RequestID: requestID,
	}
}
