// Package protocol defines the typed messages exchanged between the host and
// the dispatcher running inside the embedded web client.
package protocol

// Kind is a message type tag.
type Kind string

// Inbound kinds, posted by the embedded side.
const (
	KindReady                 Kind = "ready"
	KindLog                   Kind = "log"
	KindSendTgAuthData        Kind = "sendTgAuthData"
	KindSetShowAppTabs        Kind = "setShowAppTabs"
	KindLogout                Kind = "logout"
	KindCheckTgToken          Kind = "checkTgToken"
	KindProvideUserInfo       Kind = "provideUserInfo"
	KindRequestUserInfo       Kind = "requestUserInfo"
	KindJoinStatusResult      Kind = "JOIN_STATUS_RESULT"
	KindPreviewChannelRequest Kind = "PREVIEW_CHANNEL_REQUEST"
	KindJoinChannelResult     Kind = "joinChannelResult"
	KindChannelSessionReady   Kind = "channelSessionReady"
	KindChannelInitFailed     Kind = "channelInitFailed"
	KindInitializeChannel     Kind = "initializeChannel"
	KindJoinChannelRequest    Kind = "joinChannelRequest"
)

// Outbound-only kinds, sent by the host.
const (
	KindUploadToken     Kind = "uploadtgToken"
	KindOpenSettings    Kind = "openSettings"
	KindToChannel       Kind = "toChannel"
	KindCheckJoinStatus Kind = "checkJoinStatus"
	KindAppTabsChanged  Kind = "appTabsChanged"
)

var inbound = map[Kind]bool{
	KindReady:                 true,
	KindLog:                   true,
	KindSendTgAuthData:        true,
	KindSetShowAppTabs:        true,
	KindLogout:                true,
	KindCheckTgToken:          true,
	KindProvideUserInfo:       true,
	KindRequestUserInfo:       true,
	KindJoinStatusResult:      true,
	KindPreviewChannelRequest: true,
	KindJoinChannelResult:     true,
	KindChannelSessionReady:   true,
	KindChannelInitFailed:     true,
	KindInitializeChannel:     true,
	KindJoinChannelRequest:    true,
}

// Older web client builds spell two kinds in camel case.
var aliases = map[Kind]Kind{
	"joinStatusResult":      KindJoinStatusResult,
	"previewChannelRequest": KindPreviewChannelRequest,
}

// critical outbound kinds are deferred until the embedded side is ready;
// everything else is dropped when sent early.
var critical = map[Kind]bool{
	KindUploadToken:         true,
	KindOpenSettings:        true,
	KindToChannel:           true,
	KindInitializeChannel:   true,
	KindRequestUserInfo:     true,
	KindChannelSessionReady: true,
	KindChannelInitFailed:   true,
	KindCheckJoinStatus:     true,
}

// IsInbound reports whether k is a recognized inbound kind.
func (k Kind) IsInbound() bool { return inbound[k] }

// IsCritical reports whether an outbound message of kind k must survive
// until the embedded side is ready.
func (k Kind) IsCritical() bool { return critical[k] }

// InboundKinds returns every recognized inbound kind.
func InboundKinds() []Kind {
	kinds := make([]Kind, 0, len(inbound))
	for k := range inbound {
		kinds = append(kinds, k)
	}
	return kinds
}

func normalize(k Kind) Kind {
	if canonical, ok := aliases[k]; ok {
		return canonical
	}
	return k
}
