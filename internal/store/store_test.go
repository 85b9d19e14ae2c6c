package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptroom/storyengine/internal/store"
	"github.com/scriptroom/storyengine/internal/timeline"
)

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewFileStore(dir)
	require.NoError(t, err)

	tl := timeline.New(1_320_000, timeline.StandardStructure())
	premiseID := uuid.New()
	require.NoError(t, tl.AddNode(&timeline.StoryNode{
		ID: premiseID, Level: timeline.Premise, Name: "Pilot",
		Range: timeline.TimeRange{Start: 0, End: 1_320_000},
	}))

	projectID := uuid.New()
	meta := store.ProjectMeta{ID: projectID, Name: "Pilot", CreatedAt: time.Unix(0, 0), UpdatedAt: time.Unix(0, 0)}
	blob := []byte{0x01, 0x02, 0x03}

	require.NoError(t, s.Save(projectID, meta, tl, blob))

	loadedMeta, loadedTl, loadedBlob, err := s.Load(projectID)
	require.NoError(t, err)
	assert.Equal(t, meta.Name, loadedMeta.Name)
	assert.Equal(t, blob, loadedBlob)
	assert.Equal(t, tl.TotalDurationMs, loadedTl.TotalDurationMs)
	require.Contains(t, loadedTl.Nodes, premiseID)
	assert.Equal(t, "Pilot", loadedTl.Nodes[premiseID].Name)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Contains(t, ids, projectID)

	require.NoError(t, s.Delete(projectID))
	_, err = os.Stat(filepath.Join(dir, projectID.String()+".json"))
	assert.True(t, os.IsNotExist(err))
}

// TestFileStore_MigratesLegacySchema exercises spec §6's single legacy
// migration: a schema-1 container with separate generated/refined content
// fields and a richer status enum collapses to the current schema's single
// Content field and NodeStatus.
func TestFileStore_MigratesLegacySchema(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewFileStore(dir)
	require.NoError(t, err)

	projectID := uuid.New()
	nodeID := uuid.New()

	legacyRaw := map[string]interface{}{
		"schema": 1,
		"meta":   map[string]interface{}{"id": projectID.String(), "name": "Legacy Pilot"},
		"timeline": map[string]interface{}{
			"total_duration_ms": 1_320_000,
			"structure":         map[string]interface{}{"Segments": []interface{}{}},
			"nodes": []interface{}{
				map[string]interface{}{
					"id":                nodeID.String(),
					"level":             0,
					"sort_order":        0,
					"range":             map[string]interface{}{"Start": 0, "End": 1_320_000},
					"name":              "Premise",
					"generated_content": "draft text",
					"refined_content":   "polished text",
					"status":            3, // legacyRefined
				},
			},
		},
		"crdt_blob": nil,
	}
	data, err := json.Marshal(legacyRaw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, projectID.String()+".json"), data, 0o644))

	_, loadedTl, _, err := s.Load(projectID)
	require.NoError(t, err)
	require.Contains(t, loadedTl.Nodes, nodeID)
	node := loadedTl.Nodes[nodeID]
	assert.Equal(t, "polished text", node.Content, "user-refined content wins over generated")
	assert.Equal(t, timeline.StatusHasContent, node.Status)
}
