package webscript

// ChannelArgs names the channel a probe acts on.
type ChannelArgs struct {
	ChannelID string `json:"channelId"`
}

// JoinAPIResult reports a join attempt through the client's internal API.
// Attempted is false when no join method was found.
type JoinAPIResult struct {
	Attempted bool   `json:"attempted"`
	Success   bool   `json:"success"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FindControlArgs names the attribute set on the found control.
type FindControlArgs struct {
	Marker string `json:"marker"`
}

// FindControlResult locates a join control in the page.
type FindControlResult struct {
	Found bool `json:"found"`
	// Kind is "button" or "link".
	Kind     string `json:"kind,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// ClickArgs selects the element to click from script.
type ClickArgs struct {
	Selector string `json:"selector"`
}

// ClickResult reports whether the element existed and was clicked.
type ClickResult struct {
	Clicked bool `json:"clicked"`
}

// OpenLinkArgs drives the hidden-iframe t.me navigation.
type OpenLinkArgs struct {
	ChannelID string `json:"channelId"`
	SettleMS  int    `json:"settleMs"`
}

// JoinStatusResult is the membership read from the page.
type JoinStatusResult struct {
	ChannelID string `json:"channelId"`
	IsJoined  bool   `json:"isJoined"`
}

// CurrentChannelResult is the channel id in the page URL, nil outside a chat.
type CurrentChannelResult struct {
	ChannelID *string `json:"channelId"`
}

// PromptText holds the localized labels of the join prompt.
type PromptText struct {
	Title   string `json:"title"`
	Preview string `json:"preview"`
	Join    string `json:"join"`
	Later   string `json:"later"`
}

// PermissionArgs controls the permission-issue check. With Prompt set the
// page shows the join prompt using Text.
type PermissionArgs struct {
	Prompt bool       `json:"prompt"`
	Text   PromptText `json:"text"`
}

// PermissionResult reports a detected posting restriction.
type PermissionResult struct {
	Detected  bool    `json:"detected"`
	ChannelID *string `json:"channelId"`
	Prompted  bool    `json:"prompted"`
}

// ExploreResult lists what the client exposes: candidate globals, API
// related keys, and whether GramJS or a webpack registry is present.
type ExploreResult struct {
	Globals []string `json:"globals"`
	Related []string `json:"related"`
	GramJS  bool     `json:"gramjs"`
	Webpack bool     `json:"webpack"`
}
