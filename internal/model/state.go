package model

import "fmt"

// PublishStatus is the wire name of a page's lifecycle state.
type PublishStatus string

const (
	StatusDraft         PublishStatus = "draft"
	StatusAwaitingBuild PublishStatus = "awaiting-build"
	StatusPublished     PublishStatus = "published"
)

// PublishState is the page lifecycle: Draft, AwaitingBuild{url, at} or
// Published{url, at}. Fields are unexported so only the three legal
// combinations can be built. The zero value is Draft.
type PublishState struct {
	status      PublishStatus
	url         string
	publishedAt int64
}

// Draft is the state of a page that has never been delivered.
func Draft() PublishState {
	return PublishState{}
}

// AwaitingBuild is the state of a delivered page whose URL has not answered yet.
func AwaitingBuild(url string, publishedAt int64) PublishState {
	return PublishState{status: StatusAwaitingBuild, url: url, publishedAt: publishedAt}
}

// Published is the state of a delivered page whose URL was verified reachable.
func Published(url string, publishedAt int64) PublishState {
	return PublishState{status: StatusPublished, url: url, publishedAt: publishedAt}
}

func (s PublishState) Status() PublishStatus {
	if s.status == "" {
		return StatusDraft
	}
	return s.status
}

func (s PublishState) URL() string        { return s.url }
func (s PublishState) PublishedAt() int64 { return s.publishedAt }
func (s PublishState) IsPublished() bool  { return s.status == StatusPublished }
func (s PublishState) IsDraft() bool      { return s.Status() == StatusDraft }

// Verified promotes AwaitingBuild to Published, keeping url and publishedAt.
// Other states are returned unchanged.
func (s PublishState) Verified() PublishState {
	if s.status != StatusAwaitingBuild {
		return s
	}
	return Published(s.url, s.publishedAt)
}

func (s PublishState) String() string {
	if s.url == "" {
		return string(s.Status())
	}
	return fmt.Sprintf("%s(%s)", s.Status(), s.url)
}

// ParseState rebuilds a state from its flattened wire fields and rejects any
// combination outside the three legal ones. Records written before
// publishStatus existed carry an empty status and are inferred from the rest.
func ParseState(published bool, status PublishStatus, url string, publishedAt int64) (PublishState, error) {
	if status == "" {
		switch {
		case published && url != "":
			status = StatusPublished
		case url != "":
			status = StatusAwaitingBuild
		default:
			status = StatusDraft
		}
	}

	switch status {
	case StatusDraft:
		if published || url != "" {
			return PublishState{}, fmt.Errorf("illegal publish state: draft with published=%t url=%q", published, url)
		}
		return Draft(), nil
	case StatusAwaitingBuild:
		if published || url == "" {
			return PublishState{}, fmt.Errorf("illegal publish state: awaiting-build with published=%t url=%q", published, url)
		}
		return AwaitingBuild(url, publishedAt), nil
	case StatusPublished:
		if !published || url == "" {
			return PublishState{}, fmt.Errorf("illegal publish state: published with published=%t url=%q", published, url)
		}
		return Published(url, publishedAt), nil
	default:
		return PublishState{}, fmt.Errorf("unknown publish status %q", status)
	}
}
