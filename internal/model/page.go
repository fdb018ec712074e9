package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Structure is a layout preset chosen at promotion time.
type Structure string

const (
	StructureBlank     Structure = "blank"
	StructureKnowledge Structure = "knowledge"
	StructureBusiness  Structure = "business"
	StructureTool      Structure = "tool"
	StructureMultipage Structure = "multipage"
)

// Structures lists the closed preset set in presentation order.
var Structures = []Structure{StructureBlank, StructureKnowledge, StructureBusiness, StructureTool, StructureMultipage}

// ParseStructure validates s against the preset set.
func ParseStructure(s string) (Structure, error) {
	for _, st := range Structures {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown structure %q", s)
}

// Preset returns the default feature mask for the structure.
func (s Structure) Preset() Features {
	switch s {
	case StructureKnowledge:
		return Features{Charts: true, Images: true}
	case StructureBusiness:
		return Features{Images: true, Navigation: true, Monetization: true}
	case StructureTool:
		return Features{Widgets: true, Files: true}
	case StructureMultipage:
		return Features{Navigation: true, Images: true, Files: true}
	default:
		return Features{}
	}
}

// Features are independent toggles, one per optional page section.
type Features struct {
	Charts       bool `json:"charts"`
	Images       bool `json:"images"`
	Audio        bool `json:"audio"`
	Video        bool `json:"video"`
	Files        bool `json:"files"`
	Widgets      bool `json:"widgets"`
	Navigation   bool `json:"navigation"`
	Monetization bool `json:"monetization"`
}

// FeatureNames is the canonical feature order used for rendering and listing.
var FeatureNames = []string{"charts", "images", "audio", "video", "files", "widgets", "navigation", "monetization"}

func (f *Features) flag(name string) (*bool, error) {
	switch name {
	case "charts":
		return &f.Charts, nil
	case "images":
		return &f.Images, nil
	case "audio":
		return &f.Audio, nil
	case "video":
		return &f.Video, nil
	case "files":
		return &f.Files, nil
	case "widgets":
		return &f.Widgets, nil
	case "navigation":
		return &f.Navigation, nil
	case "monetization":
		return &f.Monetization, nil
	}
	return nil, fmt.Errorf("unknown feature %q", name)
}

// Has reports whether the named feature is enabled. Unknown names are false.
func (f Features) Has(name string) bool {
	p, err := f.flag(name)
	return err == nil && *p
}

// Set enables or disables the named feature.
func (f *Features) Set(name string, on bool) error {
	p, err := f.flag(name)
	if err != nil {
		return err
	}
	*p = on
	return nil
}

// Toggle flips the named feature.
func (f *Features) Toggle(name string) error {
	p, err := f.flag(name)
	if err != nil {
		return err
	}
	*p = !*p
	return nil
}

// Enabled returns the names of enabled features in canonical order.
func (f Features) Enabled() []string {
	var out []string
	for _, name := range FeatureNames {
		if f.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// BuildPage is a structured artifact promoted from a Token. Content and Tags
// are copied from the SearchResult at promotion time and never re-synced.
type BuildPage struct {
	ID        string         `json:"id"`
	TokenID   string         `json:"tokenId"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Structure Structure      `json:"structure,omitempty"`
	Features  Features       `json:"features"`
	Timestamp int64          `json:"timestamp"`
	Tags      []string       `json:"tags"`
	Slug      string         `json:"slug,omitempty"`
	State     PublishState   `json:"-"`
	Analytics *PageAnalytics `json:"analytics,omitempty"`
}

// PageAnalytics counts interactions with a page.
type PageAnalytics struct {
	Views          int   `json:"views"`
	Edits          int   `json:"edits"`
	Shares         int   `json:"shares"`
	UniqueVisitors int   `json:"uniqueVisitors"`
	LastViewed     int64 `json:"lastViewed,omitempty"`
}

// NewPage builds a draft page for token from result.
func NewPage(token Token, result SearchResult, title string, structure Structure, features Features, now time.Time) BuildPage {
	tags := append([]string(nil), result.Tags...)
	if tags == nil {
		tags = []string{}
	}
	return BuildPage{
		ID:        NewPageID(now),
		TokenID:   token.ID,
		Title:     title,
		Content:   result.Content,
		Structure: structure,
		Features:  features,
		Timestamp: now.UnixMilli(),
		Tags:      tags,
		State:     Draft(),
		Analytics: &PageAnalytics{},
	}
}

type pageAlias BuildPage

type pageWire struct {
	pageAlias
	Published     bool          `json:"published"`
	PublishStatus PublishStatus `json:"publishStatus"`
	URL           string        `json:"url,omitempty"`
	PublishedAt   int64         `json:"publishedAt,omitempty"`
}

// MarshalJSON flattens State into published/publishStatus/url/publishedAt.
func (p BuildPage) MarshalJSON() ([]byte, error) {
	return json.Marshal(pageWire{
		pageAlias:     pageAlias(p),
		Published:     p.State.IsPublished(),
		PublishStatus: p.State.Status(),
		URL:           p.State.URL(),
		PublishedAt:   p.State.PublishedAt(),
	})
}

// UnmarshalJSON rejects pages whose flattened publish fields do not form a
// legal state.
func (p *BuildPage) UnmarshalJSON(data []byte) error {
	var w pageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	state, err := ParseState(w.Published, w.PublishStatus, w.URL, w.PublishedAt)
	if err != nil {
		return fmt.Errorf("page %s: %w", w.ID, err)
	}
	*p = BuildPage(w.pageAlias)
	p.State = state
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return nil
}
