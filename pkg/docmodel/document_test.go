package docmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentSize(t *testing.T) {
	d := Document{Content: "hello"}
	require.Equal(t, 5, d.Size())
}

func TestNewChunkID(t *testing.T) {
	got := NewChunkID("doc123", 7)
	require.Equal(t, "doc123_chunk_0007", got)
}

func TestNewSearchHitValidatesScore(t *testing.T) {
	_, err := NewSearchHit(Chunk{}, 1.5, 1, "doc", "src", nil, ResultTypeText)
	require.Error(t, err, "expected error for out-of-range score")

	_, err = NewSearchHit(Chunk{}, -0.1, 1, "doc", "src", nil, ResultTypeText)
	require.Error(t, err, "expected error for negative score")

	hit, err := NewSearchHit(Chunk{Content: "x"}, 0.75, 1, "doc", "src", nil, ResultTypeText)
	require.NoError(t, err)
	require.Equal(t, 0.75, hit.Score)
}

func TestChatLogEvictsOldestAfterAppend(t *testing.T) {
	log := NewChatLog(4)
	roles := []ChatRole{RoleUser, RoleAssistant, RoleUser, RoleAssistant, RoleUser, RoleAssistant}
	for i, r := range roles {
		log.Append(ChatTurn{Role: r, Content: string(rune('0' + i))})
	}

	require.Equal(t, 4, log.Len())

	turns := log.Turns()
	want := []string{"2", "3", "4", "5"}
	for i, w := range want {
		require.Equal(t, w, turns[i].Content, "turn %d", i)
	}
}

func TestChatLogUnbounded(t *testing.T) {
	log := NewChatLog(0)
	for i := 0; i < 10; i++ {
		log.Append(ChatTurn{Role: RoleUser})
	}
	require.Equal(t, 10, log.Len())
}

func TestChatLogClear(t *testing.T) {
	log := NewChatLog(4)
	log.Append(ChatTurn{Role: RoleUser})
	log.Clear()
	require.Equal(t, 0, log.Len())
}
