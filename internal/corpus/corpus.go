// Package corpus is the data-provider boundary: it turns the on-disk
// scraped corpus into the post/rule records the moderation core consumes.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"modkeeper/internal/moderation"
)

// Snapshot is one loaded batch: a topic's rules plus the requested posts.
type Snapshot struct {
	Subreddit string
	Rules     []moderation.Rule
	Posts     []moderation.Post
	Comments  []string
}

// Provider supplies a formatted snapshot of posts and rules.
type Provider interface {
	Load() (*Snapshot, error)
}

// DirLoader reads the scraper's directory layout:
// <dataDir>/<topic>/rules.json, subreddit_info.json and one directory per
// post containing post.json and optionally comments.json.
type DirLoader struct {
	DataDir string
	Topic   string
	PostIDs []string
}

// NewDirLoader creates a loader for one topic. An empty postIDs list
// loads every post under the topic.
func NewDirLoader(dataDir, topic string, postIDs []string) *DirLoader {
	return &DirLoader{DataDir: dataDir, Topic: topic, PostIDs: postIDs}
}

type rawPost struct {
	Data struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		SelfText string `json:"selftext"`
	} `json:"data"`
}

type rawComment struct {
	Body string `json:"body"`
}

type rawRule struct {
	Kind            string `json:"kind"`
	Description     string `json:"description"`
	ShortName       string `json:"short_name"`
	ViolationReason string `json:"violation_reason"`
	Priority        int    `json:"priority"`
}

// Load reads and formats the topic's data. Rule ids are synthetic
// (rule_N, 1-based, in file order).
func (l *DirLoader) Load() (*Snapshot, error) {
	topicDir := filepath.Join(l.DataDir, l.Topic)
	info, err := os.Stat(topicDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("topic directory %q not found in %s", l.Topic, l.DataDir)
	}

	rules, err := l.loadRules(topicDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(topicDir)
	if err != nil {
		return nil, fmt.Errorf("reading topic directory: %w", err)
	}

	wanted := make(map[string]bool, len(l.PostIDs))
	for _, id := range l.PostIDs {
		wanted[id] = true
	}

	snapshot := &Snapshot{Subreddit: l.Topic, Rules: rules}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		post, comments, err := l.loadPost(filepath.Join(topicDir, entry.Name()))
		if err != nil {
			continue // skip unreadable post directories
		}
		if len(wanted) > 0 && !wanted[post.ID] {
			continue
		}
		snapshot.Posts = append(snapshot.Posts, post)
		snapshot.Comments = append(snapshot.Comments, comments...)
	}

	if len(wanted) > 0 && len(snapshot.Posts) == 0 {
		return nil, fmt.Errorf("no posts found with ids %v in topic %s", l.PostIDs, l.Topic)
	}
	return snapshot, nil
}

func (l *DirLoader) loadRules(topicDir string) ([]moderation.Rule, error) {
	data, err := os.ReadFile(filepath.Join(topicDir, "rules.json"))
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}

	var list []rawRule
	if err := json.Unmarshal(data, &list); err != nil {
		// The scraper sometimes nests the list under a "rules" key.
		var wrapper struct {
			Rules []rawRule `json:"rules"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("parsing rules: %w", err)
		}
		list = wrapper.Rules
	}

	rules := make([]moderation.Rule, 0, len(list))
	for i, r := range list {
		rules = append(rules, moderation.Rule{
			ID:              fmt.Sprintf("rule_%d", i+1),
			Kind:            r.Kind,
			Description:     r.Description,
			ShortName:       r.ShortName,
			ViolationReason: r.ViolationReason,
			Priority:        r.Priority,
		})
	}
	return rules, nil
}

func (l *DirLoader) loadPost(postDir string) (moderation.Post, []string, error) {
	data, err := os.ReadFile(filepath.Join(postDir, "post.json"))
	if err != nil {
		return moderation.Post{}, nil, err
	}
	var raw rawPost
	if err := json.Unmarshal(data, &raw); err != nil {
		return moderation.Post{}, nil, err
	}

	var comments []string
	if commentData, err := os.ReadFile(filepath.Join(postDir, "comments.json")); err == nil {
		var rawComments []rawComment
		if err := json.Unmarshal(commentData, &rawComments); err == nil {
			for _, c := range rawComments {
				if c.Body != "" {
					comments = append(comments, c.Body)
				}
			}
		}
	}

	return moderation.Post{
		ID:    raw.Data.ID,
		Title: raw.Data.Title,
		Body:  raw.Data.SelfText,
	}, comments, nil
}

// ListPostIDs returns the post directory names under a topic. Missing
// topics yield an empty list, not an error; the sampler treats them as
// sources with nothing to draw.
func ListPostIDs(dataDir, topic string) []string {
	entries, err := os.ReadDir(filepath.Join(dataDir, topic))
	if err != nil {
		return nil
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids
}
