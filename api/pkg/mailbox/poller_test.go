package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squidgyai/hlprovision/api/pkg/config"
)

type fakeSession struct {
	unseen  map[string][]uint32
	recent  map[string][]uint32
	bodies  map[uint32]Message
	seen    map[uint32]bool
	dialErr error

	searches int
	closed   bool
}

func (f *fakeSession) Search(criteria *imap.SearchCriteria) ([]uint32, error) {
	f.searches++
	sender := criteria.Header.Get("From")
	if len(criteria.WithoutFlags) > 0 {
		var fresh []uint32
		for _, id := range f.unseen[sender] {
			if !f.seen[id] {
				fresh = append(fresh, id)
			}
		}
		return fresh, nil
	}
	return f.recent[sender], nil
}

func (f *fakeSession) Fetch(seqNum uint32) (Message, error) {
	msg, ok := f.bodies[seqNum]
	if !ok {
		return Message{}, errors.New("no such message")
	}
	return msg, nil
}

func (f *fakeSession) MarkSeen(seqNum uint32) error {
	if f.seen == nil {
		f.seen = map[uint32]bool{}
	}
	f.seen[seqNum] = true
	return nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func testMailboxConfig() config.Mailbox {
	return config.Mailbox{
		Senders:       []string{"noreply@talk.onetoo.com", "noreply@gohighlevel.com"},
		Subject:       "Login security code",
		PollAttempts:  3,
		PollInterval:  time.Millisecond,
		RecencyWindow: time.Hour,
	}
}

func pollerOver(sess *fakeSession) *Poller {
	return NewWithDialer(testMailboxConfig(), func(context.Context) (Session, error) {
		if sess.dialErr != nil {
			return nil, sess.dialErr
		}
		return sess, nil
	})
}

func TestAwaitCodeFindsUnseenMessage(t *testing.T) {
	sess := &fakeSession{
		unseen: map[string][]uint32{"noreply@talk.onetoo.com": {7}},
		bodies: map[uint32]Message{
			7: {SeqNum: 7, Date: time.Now(), Body: "Your login security code: 482913"},
		},
	}

	code, err := pollerOver(sess).AwaitCode(context.Background(), time.Now().Add(-time.Minute), 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "482913", code)
	assert.True(t, sess.seen[7], "consumed message must be marked seen")
	assert.True(t, sess.closed)
}

func TestAwaitCodePicksNewestOfSeveral(t *testing.T) {
	sess := &fakeSession{
		unseen: map[string][]uint32{"noreply@talk.onetoo.com": {3, 9, 5}},
		bodies: map[uint32]Message{
			3: {SeqNum: 3, Date: time.Now(), Body: "Your login security code: 111111"},
			5: {SeqNum: 5, Date: time.Now(), Body: "Your login security code: 222222"},
			9: {SeqNum: 9, Date: time.Now(), Body: "Your login security code: 333333"},
		},
	}

	code, err := pollerOver(sess).AwaitCode(context.Background(), time.Now().Add(-time.Minute), 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "333333", code)
}

func TestAwaitCodeIgnoresStaleMessage(t *testing.T) {
	sess := &fakeSession{
		unseen: map[string][]uint32{"noreply@talk.onetoo.com": {4}},
		bodies: map[uint32]Message{
			4: {SeqNum: 4, Date: time.Now().Add(-2 * time.Hour), Body: "Your login security code: 482913"},
		},
	}

	_, err := pollerOver(sess).AwaitCode(context.Background(), time.Now(), 2, time.Millisecond)
	require.ErrorIs(t, err, ErrNoCode)
	assert.False(t, sess.seen[4], "stale message must not be consumed")
}

func TestAwaitCodeFallsBackToSecondSender(t *testing.T) {
	sess := &fakeSession{
		unseen: map[string][]uint32{"noreply@gohighlevel.com": {2}},
		bodies: map[uint32]Message{
			2: {SeqNum: 2, Date: time.Now(), Body: "security code: 733210"},
		},
	}

	code, err := pollerOver(sess).AwaitCode(context.Background(), time.Now().Add(-time.Minute), 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "733210", code)
}

func TestAwaitCodeFallsBackToRecentWhenAllSeen(t *testing.T) {
	// A prior attempt marked the message read before the code was used.
	sess := &fakeSession{
		unseen: map[string][]uint32{"noreply@talk.onetoo.com": {6}},
		recent: map[string][]uint32{"noreply@talk.onetoo.com": {6}},
		seen:   map[uint32]bool{6: true},
		bodies: map[uint32]Message{
			6: {SeqNum: 6, Date: time.Now(), Body: "Your login security code: 482913"},
		},
	}

	code, err := pollerOver(sess).AwaitCode(context.Background(), time.Now().Add(-time.Minute), 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "482913", code)
}

func TestAwaitCodeExhaustsBudget(t *testing.T) {
	sess := &fakeSession{}

	start := time.Now()
	_, err := pollerOver(sess).AwaitCode(context.Background(), start, 3, time.Millisecond)
	require.ErrorIs(t, err, ErrNoCode)
}

func TestAwaitCodeForgivesDialFailures(t *testing.T) {
	sess := &fakeSession{dialErr: errors.New("connection refused")}

	_, err := pollerOver(sess).AwaitCode(context.Background(), time.Now(), 2, time.Millisecond)
	require.ErrorIs(t, err, ErrNoCode, "dial trouble must not surface as a hard failure")
}

func TestAwaitCodeStopsOnCancelledContext(t *testing.T) {
	sess := &fakeSession{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pollerOver(sess).AwaitCode(ctx, time.Now(), 5, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSearchCriteriaShape(t *testing.T) {
	p := NewWithDialer(testMailboxConfig(), nil)

	unseen := p.unseenCriteria("noreply@talk.onetoo.com")
	assert.Equal(t, []string{imap.SeenFlag}, unseen.WithoutFlags)
	assert.Equal(t, "noreply@talk.onetoo.com", unseen.Header.Get("From"))
	assert.Equal(t, "Login security code", unseen.Header.Get("Subject"))

	sentAfter := time.Now().Add(-10 * time.Minute)
	recent := p.recentCriteria("noreply@talk.onetoo.com", sentAfter)
	assert.Empty(t, recent.WithoutFlags)
	assert.False(t, recent.Since.IsZero())
	assert.False(t, recent.Since.Before(sentAfter))
}
