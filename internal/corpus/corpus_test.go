package corpus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func writePost(t *testing.T, topicDir, id, title, body string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"data": map[string]any{"id": id, "title": title, "selftext": body},
	})
	require.NoError(t, err)
	writeFile(t, filepath.Join(topicDir, id, "post.json"), payload)
}

func setupTopic(t *testing.T, rulesJSON string) (dataDir string) {
	t.Helper()
	dataDir = t.TempDir()
	topicDir := filepath.Join(dataDir, "gardening")
	writeFile(t, filepath.Join(topicDir, "rules.json"), []byte(rulesJSON))
	writePost(t, topicDir, "p1", "tomato advice", "how do I stake tomatoes")
	writePost(t, topicDir, "p2", "buy my fertilizer", "great deals")
	return dataDir
}

const plainRules = `[
  {"short_name": "Be civil", "description": "No personal attacks"},
  {"short_name": "No spam", "description": "No promotional content"}
]`

func TestLoadAssignsSyntheticRuleIDs(t *testing.T) {
	dataDir := setupTopic(t, plainRules)

	snapshot, err := NewDirLoader(dataDir, "gardening", nil).Load()
	require.NoError(t, err)

	require.Len(t, snapshot.Rules, 2)
	assert.Equal(t, "rule_1", snapshot.Rules[0].ID)
	assert.Equal(t, "Be civil", snapshot.Rules[0].ShortName)
	assert.Equal(t, "rule_2", snapshot.Rules[1].ID)
	assert.Equal(t, "gardening", snapshot.Subreddit)
	assert.Len(t, snapshot.Posts, 2)
}

func TestLoadAcceptsNestedRulesKey(t *testing.T) {
	nested := `{"rules": [{"short_name": "No spam"}]}`
	dataDir := setupTopic(t, nested)

	snapshot, err := NewDirLoader(dataDir, "gardening", nil).Load()
	require.NoError(t, err)

	require.Len(t, snapshot.Rules, 1)
	assert.Equal(t, "rule_1", snapshot.Rules[0].ID)
}

func TestLoadFiltersByPostID(t *testing.T) {
	dataDir := setupTopic(t, plainRules)

	snapshot, err := NewDirLoader(dataDir, "gardening", []string{"p2"}).Load()
	require.NoError(t, err)

	require.Len(t, snapshot.Posts, 1)
	assert.Equal(t, "p2", snapshot.Posts[0].ID)
	assert.Equal(t, "buy my fertilizer", snapshot.Posts[0].Title)
}

func TestLoadErrorsWhenFilterMatchesNothing(t *testing.T) {
	dataDir := setupTopic(t, plainRules)

	_, err := NewDirLoader(dataDir, "gardening", []string{"missing"}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestLoadMissingTopic(t *testing.T) {
	_, err := NewDirLoader(t.TempDir(), "nope", nil).Load()
	require.Error(t, err)
}

func TestLoadSkipsUnreadablePostDirs(t *testing.T) {
	dataDir := setupTopic(t, plainRules)
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "gardening", "broken"), 0o755))
	writeFile(t, filepath.Join(dataDir, "gardening", "garbage", "post.json"), []byte("not json"))

	snapshot, err := NewDirLoader(dataDir, "gardening", nil).Load()
	require.NoError(t, err)
	assert.Len(t, snapshot.Posts, 2)
}

func TestLoadReadsComments(t *testing.T) {
	dataDir := setupTopic(t, plainRules)
	comments := `[{"body": "nice post"}, {"body": ""}, {"body": "agreed"}]`
	writeFile(t, filepath.Join(dataDir, "gardening", "p1", "comments.json"), []byte(comments))

	snapshot, err := NewDirLoader(dataDir, "gardening", []string{"p1"}).Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"nice post", "agreed"}, snapshot.Comments)
}

func TestListPostIDs(t *testing.T) {
	dataDir := setupTopic(t, plainRules)

	ids := ListPostIDs(dataDir, "gardening")
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)

	assert.Nil(t, ListPostIDs(dataDir, "missing_topic"))
}
