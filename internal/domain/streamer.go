package domain

import "context"

// Streamer is the client-facing record describing a channel and its current or last-known
// live status. Viewers is 0 and IsLive false whenever no active stream exists.
type Streamer struct {
	ChannelID       string `json:"channelId"`
	DisplayName     string `json:"displayName"`
	LoginName       string `json:"loginName"`
	ProfileImageURL string `json:"profileImageUrl"`
	Title           string `json:"title"`
	GameName        string `json:"gameName"`
	Viewers         int    `json:"viewers"`
	IsLive          bool   `json:"isLive"`
}

// StreamService is the application contract exposed to the routing layer.
type StreamService interface {
	GetChannel(ctx context.Context, loginName string) (*Streamer, error)
	SearchChannels(ctx context.Context, query string) ([]Streamer, error)
	GetFollowedStreamsForAccount(ctx context.Context, accountID string) ([]Streamer, error)
}
