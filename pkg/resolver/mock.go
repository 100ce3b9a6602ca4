package resolver

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"time"

	"golang.org/x/text/language"

	"tgbridge/pkg/apperr"
)

// Well-known development channel.
const testChannelID = "-1002581211950"

// processSeed varies mock member counts between runs while keeping them
// stable within one.
var processSeed = uint64(time.Now().UnixNano())

func mockMemberCount(channelID string) int {
	h := fnv.New64a()
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], processSeed)
	_, _ = h.Write(seed[:])
	_, _ = h.Write([]byte(channelID))
	return int(h.Sum64()%10000) + 100
}

func mockChannel(channelID string, lang language.Tag) *ChannelInfo {
	count := mockMemberCount(channelID)
	info := &ChannelInfo{
		ID:          channelID,
		Title:       fmt.Sprintf(apperr.Text(apperr.MsgChannelTitle, lang), channelID),
		Username:    fmt.Sprintf("channel_%s", channelID),
		Description: "Mock channel info (no bot credential configured)",
		MemberCount: &count,
		IsChannel:   true,
		Photo: &Photo{
			Small: "https://via.placeholder.com/50x50/007AFF/FFFFFF?text=TG",
			Big:   "https://via.placeholder.com/200x200/007AFF/FFFFFF?text=Telegram",
		},
	}
	if channelID == testChannelID {
		info.Title = "test"
		info.Username = "test_channel"
	}
	return info
}

func mockPreview(channelID string, lang language.Tag) *ChannelInfo {
	count := 1000
	return &ChannelInfo{
		ID:          channelID,
		Title:       apperr.Text(apperr.MsgPreviewTitle, lang),
		Username:    "preview_channel",
		Description: "Public channel (no bot credential configured)",
		MemberCount: &count,
		IsChannel:   true,
	}
}
