package apperr

import (
	"golang.org/x/text/language"
)

// MessageID identifies a user-facing message.
type MessageID string

const (
	MsgUserNotLoggedIn MessageID = "user_not_logged_in"
	MsgBotNotMember    MessageID = "bot_not_member"
	MsgJoinNotFound    MessageID = "join_control_not_found"
	MsgPreviewTitle    MessageID = "preview_title"
	MsgUnknownChannel  MessageID = "unknown_channel"
	MsgChannelTitle    MessageID = "channel_title"
	MsgReloginRequired MessageID = "relogin_required"

	MsgPromptTitle   MessageID = "prompt_title"
	MsgPromptPreview MessageID = "prompt_preview"
	MsgPromptJoin    MessageID = "prompt_join"
	MsgPromptLater   MessageID = "prompt_later"
)

var supported = []language.Tag{
	language.English,
	language.SimplifiedChinese,
}

var matcher = language.NewMatcher(supported)

var kindCatalog = map[language.Tag]map[Kind]string{
	language.English: {
		KindChannelPrivate:  "This channel is private and cannot be accessed",
		KindChannelNotFound: "Channel does not exist",
		KindAccessDenied:    "Access denied",
		KindNetwork:         "Network connection error",
		KindUnauthorized:    "User is not authorized",
		KindUnknown:         "Unknown error",
	},
	language.SimplifiedChinese: {
		KindChannelPrivate:  "该频道为私有频道，无法访问",
		KindChannelNotFound: "频道不存在",
		KindAccessDenied:    "访问被拒绝",
		KindNetwork:         "网络连接错误",
		KindUnauthorized:    "用户未授权",
		KindUnknown:         "未知错误",
	},
}

var messageCatalog = map[language.Tag]map[MessageID]string{
	language.English: {
		MsgUserNotLoggedIn: "User is not logged in",
		MsgBotNotMember:    "The bot cannot read this channel. Add %s to the channel as an administrator and try again",
		MsgJoinNotFound:    "No join button or link was found",
		MsgPreviewTitle:    "Channel preview",
		MsgUnknownChannel:  "Unknown channel",
		MsgChannelTitle:    "Channel %s",
		MsgReloginRequired: "User info is unavailable, please log in again",
		MsgPromptTitle:     "Join this channel to post messages",
		MsgPromptPreview:   "Preview channel",
		MsgPromptJoin:      "Join channel",
		MsgPromptLater:     "Later",
	},
	language.SimplifiedChinese: {
		MsgUserNotLoggedIn: "用户未登录",
		MsgBotNotMember:    "机器人无法读取该频道，请将 %s 添加为频道管理员后重试",
		MsgJoinNotFound:    "未找到加入按钮或链接",
		MsgPreviewTitle:    "频道预览",
		MsgUnknownChannel:  "未知频道",
		MsgChannelTitle:    "频道 %s",
		MsgReloginRequired: "无法获取用户信息，请重新登录",
		MsgPromptTitle:     "加入该频道后才能发言",
		MsgPromptPreview:   "预览频道",
		MsgPromptJoin:      "加入频道",
		MsgPromptLater:     "稍后",
	},
}

// Lang resolves an Accept-Language style preference list to a supported tag.
func Lang(prefs ...string) language.Tag {
	tags := make([]language.Tag, 0, len(prefs))
	for _, p := range prefs {
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Message returns the user-facing text for kind in lang.
func Message(kind Kind, lang language.Tag) string {
	if msg, ok := kindCatalog[base(lang)][kind]; ok {
		return msg
	}
	return kindCatalog[language.English][KindUnknown]
}

// Text returns the user-facing text for id in lang. Some entries are
// format strings; callers pass them through fmt.Sprintf.
func Text(id MessageID, lang language.Tag) string {
	if msg, ok := messageCatalog[base(lang)][id]; ok {
		return msg
	}
	return messageCatalog[language.English][id]
}

func base(lang language.Tag) language.Tag {
	_, idx, _ := matcher.Match(lang)
	return supported[idx]
}
