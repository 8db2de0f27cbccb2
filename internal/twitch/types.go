package twitch

// StreamTypeLive is the only stream type Helix reports for an active broadcast.
const StreamTypeLive = "live"

// User is a record from GET /helix/users.
type User struct {
	ID              string
	Login           string
	DisplayName     string
	ProfileImageURL string
}

// Stream is a record from GET /helix/streams.
type Stream struct {
	ID          string
	UserID      string
	UserLogin   string
	UserName    string
	GameName    string
	Type        string
	Title       string
	ViewerCount int
}

// Channel is a record from GET /helix/channels. It persists while the channel is offline.
type Channel struct {
	BroadcasterID   string
	BroadcasterName string
	GameName        string
	Title           string
}

// SearchResult is a record from GET /helix/search/channels.
type SearchResult struct {
	ID               string
	BroadcasterLogin string
	DisplayName      string
	GameName         string
	IsLive           bool
	ThumbnailURL     string
	Title            string
}

// FollowedStream is a record from GET /helix/streams/followed. Only live channels are returned.
type FollowedStream struct {
	ID          string
	UserID      string
	UserLogin   string
	UserName    string
	GameName    string
	Title       string
	ViewerCount int
}

// tokenResponse is the body of the OAuth token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}
