package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMessenger records sends in memory.
type fakeMessenger struct {
	mapping      map[string]int
	mappingCalls int
	sent         []int
	sentFiles    []string
	failFor      map[int]error
}

func (f *fakeMessenger) UserIDMapping(ctx context.Context) (map[string]int, error) {
	f.mappingCalls++
	return f.mapping, nil
}

func (f *fakeMessenger) SendMessage(ctx context.Context, userID int, subject, body string) error {
	if err := f.failFor[userID]; err != nil {
		return err
	}
	f.sent = append(f.sent, userID)
	return nil
}

func (f *fakeMessenger) SendFileMessage(ctx context.Context, selfID, targetID int, subject, body, fileName string, contents []byte) error {
	if err := f.failFor[targetID]; err != nil {
		return err
	}
	f.sent = append(f.sent, targetID)
	f.sentFiles = append(f.sentFiles, fileName)
	return nil
}

// fakeMappingCache is an in-memory UserMappingCache.
type fakeMappingCache struct {
	stored map[string]int
}

func (f *fakeMappingCache) GetCanvasUserMapping(ctx context.Context, accountID int) (map[string]int, error) {
	if f.stored == nil {
		return nil, errors.New("cache miss")
	}
	return f.stored, nil
}

func (f *fakeMappingCache) SetCanvasUserMapping(ctx context.Context, accountID int, mapping map[string]int) error {
	f.stored = mapping
	return nil
}

func TestSendFeedback_MatchesAccountNamesCaseInsensitively(t *testing.T) {
	messenger := &fakeMessenger{mapping: map[string]int{"Ansgar_Anka": 11, "mimmi_pigg": 12}}
	handler := NewSendFeedbackHandler(messenger, nil, 1, nil)

	result, err := handler.Handle(context.Background(), SendFeedbackCommand{
		Subject: "Dina resultat",
		Messages: []FeedbackMessage{
			{ParticipantID: "ansgar_anka", Body: "Hej!"},
			{ParticipantID: "MIMMI_PIGG", Body: "Hej!"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Sent)
	assert.Empty(t, result.Unmapped)
	assert.Equal(t, []int{11, 12}, messenger.sent)
}

func TestSendFeedback_UnmappedAndFailedDoNotAbortTheBatch(t *testing.T) {
	sendErr := errors.New("conversation rejected")
	messenger := &fakeMessenger{
		mapping: map[string]int{"alice": 1, "bob": 2, "carol": 3},
		failFor: map[int]error{2: sendErr},
	}
	handler := NewSendFeedbackHandler(messenger, nil, 1, nil)

	result, err := handler.Handle(context.Background(), SendFeedbackCommand{
		Subject: "Dina resultat",
		Messages: []FeedbackMessage{
			{ParticipantID: "alice", Body: "x"},
			{ParticipantID: "ghost", Body: "x"},
			{ParticipantID: "bob", Body: "x"},
			{ParticipantID: "carol", Body: "x"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, []string{"ghost"}, result.Unmapped)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "bob", result.Failures[0].ParticipantID)
	assert.ErrorIs(t, result.Failures[0].Err, sendErr)
}

func TestSendFeedback_AttachmentsGoThroughFileSend(t *testing.T) {
	messenger := &fakeMessenger{mapping: map[string]int{"alice": 1}}
	handler := NewSendFeedbackHandler(messenger, nil, 1, nil)

	result, err := handler.Handle(context.Background(), SendFeedbackCommand{
		Subject:  "Dina resultat",
		SenderID: 99,
		Messages: []FeedbackMessage{
			{ParticipantID: "alice", Body: "Se bilagan.", AttachmentName: "alice.png", Attachment: []byte("png")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, []string{"alice.png"}, messenger.sentFiles)
}

func TestSendFeedback_UsesAndFillsTheMappingCache(t *testing.T) {
	messenger := &fakeMessenger{mapping: map[string]int{"alice": 1}}
	cache := &fakeMappingCache{}
	handler := NewSendFeedbackHandler(messenger, cache, 1, nil)

	cmd := SendFeedbackCommand{
		Subject:  "Dina resultat",
		Messages: []FeedbackMessage{{ParticipantID: "alice", Body: "x"}},
	}

	_, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, messenger.mappingCalls)
	assert.Equal(t, map[string]int{"alice": 1}, cache.stored)

	// Second batch hits the cache, not the API.
	_, err = handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, messenger.mappingCalls)
}

func TestSendFeedback_Validation(t *testing.T) {
	handler := NewSendFeedbackHandler(&fakeMessenger{}, nil, 1, nil)

	_, err := handler.Handle(context.Background(), SendFeedbackCommand{Subject: "  "})
	assert.Error(t, err)

	_, err = handler.Handle(context.Background(), SendFeedbackCommand{Subject: "x"})
	assert.Error(t, err)
}
