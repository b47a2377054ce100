// Package tags holds the serializable tab collection and the local store the
// sync engine imports into and exports from.
package tags

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
)

// Tab is a single saved tab
type Tab struct {
	TabID      string `json:"tabId,omitempty"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	FavIconURL string `json:"favIconUrl,omitempty"`

	extra map[string]json.RawMessage
}

// Group is a named group of tabs within a tag
type Group struct {
	GroupID   string `json:"groupId,omitempty"`
	GroupName string `json:"groupName"`
	CreatedAt string `json:"createdAt,omitempty"`
	Locked    bool   `json:"isLocked,omitempty"`
	Starred   bool   `json:"isStarred,omitempty"`
	TabList   []Tab  `json:"tabList"`

	extra map[string]json.RawMessage
}

// Tag is the top level of the collection
type Tag struct {
	TagID     string  `json:"tagId,omitempty"`
	TagName   string  `json:"tagName"`
	CreatedAt string  `json:"createdAt,omitempty"`
	Static    bool    `json:"static,omitempty"`
	GroupList []Group `json:"groupList"`

	extra map[string]json.RawMessage
}

// Documents written by other clients carry members these types do not model.
// They are kept per object and written back unchanged. Keys mapped to a
// non-nil value are omitted when empty; that value is their zero literal.
var (
	tabFields = map[string]json.RawMessage{
		"tabId": json.RawMessage(`""`), "title": nil, "url": nil, "favIconUrl": json.RawMessage(`""`),
	}
	groupFields = map[string]json.RawMessage{
		"groupId": json.RawMessage(`""`), "groupName": nil, "createdAt": json.RawMessage(`""`),
		"isLocked": json.RawMessage(`false`), "isStarred": json.RawMessage(`false`), "tabList": nil,
	}
	tagFields = map[string]json.RawMessage{
		"tagId": json.RawMessage(`""`), "tagName": nil, "createdAt": json.RawMessage(`""`),
		"static": json.RawMessage(`false`), "groupList": nil,
	}
)

// splitExtra returns the members of a JSON object that the struct fields
// cannot reproduce: unknown keys, and omitted-when-empty keys given
// explicitly with their zero value.
func splitExtra(data []byte, fields map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for key, value := range raw {
		zero, known := fields[key]
		if known && (zero == nil || !bytes.Equal(bytes.TrimSpace(value), zero)) {
			delete(raw, key)
		}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// joinExtra adds extra members to an encoded object. Modeled fields win.
func joinExtra(data []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return data, nil
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(data, &known); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(extra)+len(known))
	for key, value := range extra {
		out[key] = value
	}
	for key, value := range known {
		out[key] = value
	}
	return json.Marshal(out)
}

func (t Tab) MarshalJSON() ([]byte, error) {
	type plain Tab
	data, err := json.Marshal(plain(t))
	if err != nil {
		return nil, err
	}
	return joinExtra(data, t.extra)
}

func (t *Tab) UnmarshalJSON(data []byte) error {
	type plain Tab
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, tabFields)
	if err != nil {
		return err
	}
	*t = Tab(p)
	t.extra = extra
	return nil
}

func (g Group) MarshalJSON() ([]byte, error) {
	type plain Group
	data, err := json.Marshal(plain(g))
	if err != nil {
		return nil, err
	}
	return joinExtra(data, g.extra)
}

func (g *Group) UnmarshalJSON(data []byte) error {
	type plain Group
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, groupFields)
	if err != nil {
		return err
	}
	*g = Group(p)
	g.extra = extra
	return nil
}

func (t Tag) MarshalJSON() ([]byte, error) {
	type plain Tag
	data, err := json.Marshal(plain(t))
	if err != nil {
		return nil, err
	}
	return joinExtra(data, t.extra)
}

func (t *Tag) UnmarshalJSON(data []byte) error {
	type plain Tag
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, tagFields)
	if err != nil {
		return err
	}
	*t = Tag(p)
	t.extra = extra
	return nil
}

// TagList is the serializable form of the local tab collection
type TagList []Tag

// ImportMode selects how Import combines incoming content with local content
type ImportMode string

const (
	// ImportMerge adds incoming entries missing locally and removes nothing
	ImportMerge ImportMode = "merge"
	// ImportReplace discards local content
	ImportReplace ImportMode = "replace"
)

// Encode serializes a tag list. A nil list encodes as "[]".
func Encode(list TagList) ([]byte, error) {
	if list == nil {
		list = TagList{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tag list: %w", err)
	}
	return data, nil
}

// Parse decodes a tag list document. Blank input is an empty list.
func Parse(data []byte) (TagList, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return TagList{}, nil
	}
	var list TagList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse tag list: %w", err)
	}
	if list == nil {
		list = TagList{}
	}
	return list, nil
}

// Clone returns a deep copy. Nil and empty lists stay as they were so the
// copy encodes identically.
func (l TagList) Clone() TagList {
	if l == nil {
		return nil
	}
	out := make(TagList, len(l))
	for i, tag := range l {
		out[i] = tag
		out[i].GroupList = slices.Clone(tag.GroupList)
		for j, group := range tag.GroupList {
			out[i].GroupList[j].TabList = slices.Clone(group.TabList)
		}
	}
	return out
}

// Zero width joiners and emoji variation selectors are left over once the
// pictographs of a sequence are removed, so they go too.
var emojiPattern = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}\x{E0020}-\x{E007F}\x{200D}\x{FE0F}]`)

// StripEmoji removes emoji from an encoded document. Some remotes reject
// them, so uploads go through here. A document reduced to nothing becomes "[]".
func StripEmoji(data []byte) []byte {
	out := emojiPattern.ReplaceAll(data, nil)
	if len(bytes.TrimSpace(out)) == 0 {
		return []byte("[]")
	}
	return out
}

// Merge returns the union of local and incoming. Tags match by id, then by
// name (the static tag matches the static tag); groups within a tag match the
// same way; tabs within a group are de-duplicated by URL. Local order is kept
// and unmatched incoming entries are appended. Matched entries keep the local
// copy's unmodeled members.
func Merge(local, incoming TagList) TagList {
	result := local.Clone()
	if result == nil {
		result = TagList{}
	}

	for _, tag := range incoming {
		idx := findTag(result, tag)
		if idx < 0 {
			result = append(result, TagList{tag}.Clone()[0])
			continue
		}
		for _, group := range tag.GroupList {
			result[idx].GroupList = mergeGroup(result[idx].GroupList, group)
		}
	}
	return result
}

func findTag(list TagList, tag Tag) int {
	for i, t := range list {
		if tag.TagID != "" && t.TagID == tag.TagID {
			return i
		}
	}
	for i, t := range list {
		if tag.Static && t.Static {
			return i
		}
		if !tag.Static && !t.Static && tag.TagName != "" && t.TagName == tag.TagName {
			return i
		}
	}
	return -1
}

func mergeGroup(groups []Group, group Group) []Group {
	idx := -1
	for i, g := range groups {
		if group.GroupID != "" && g.GroupID == group.GroupID {
			idx = i
			break
		}
	}
	if idx < 0 && group.GroupName != "" {
		for i, g := range groups {
			if g.GroupName == group.GroupName {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		group.TabList = append([]Tab(nil), group.TabList...)
		return append(groups, group)
	}

	seen := make(map[string]bool, len(groups[idx].TabList))
	for _, tab := range groups[idx].TabList {
		seen[tab.URL] = true
	}
	for _, tab := range group.TabList {
		if seen[tab.URL] {
			continue
		}
		seen[tab.URL] = true
		groups[idx].TabList = append(groups[idx].TabList, tab)
	}
	return groups
}
