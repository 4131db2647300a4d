// Package mailbox watches an IMAP inbox for the console's one-time passcode
// emails. Reading is the only capability needed; the single mutation is
// marking a consumed message as seen.
package mailbox

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/emersion/go-imap"
	"github.com/rs/zerolog/log"

	"github.com/squidgyai/hlprovision/api/pkg/config"
)

// ErrNoCode means polling exhausted its budget without a fresh OTP. The
// surrounding job is safely re-runnable.
var ErrNoCode = errors.New("no otp email arrived")

// Message is the part of a fetched email the poller cares about.
type Message struct {
	SeqNum uint32
	Date   time.Time
	Body   string
}

// Session is one live IMAP connection with INBOX selected.
type Session interface {
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	Fetch(seqNum uint32) (Message, error)
	MarkSeen(seqNum uint32) error
	Close() error
}

type Poller struct {
	cfg config.Mailbox

	// dial is swappable so tests can run against a fake session.
	dial func(ctx context.Context) (Session, error)
}

func New(cfg config.Mailbox) *Poller {
	p := &Poller{cfg: cfg}
	p.dial = func(ctx context.Context) (Session, error) {
		return retry.DoWithData(func() (Session, error) {
			return dialIMAP(cfg)
		},
			retry.Attempts(2),
			retry.Delay(500*time.Millisecond),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
		)
	}
	return p
}

// NewWithDialer builds a poller over a custom session source.
func NewWithDialer(cfg config.Mailbox, dial func(ctx context.Context) (Session, error)) *Poller {
	return &Poller{cfg: cfg, dial: dial}
}

// AwaitCode polls the mailbox until a fresh OTP arrives, once per interval,
// up to maxAttempts. A message older than sentAfter is treated as not found:
// on a mailbox shared across tenants it may belong to another job, or a
// concurrent poller may already have consumed the one we wanted.
func (p *Poller) AwaitCode(ctx context.Context, sentAfter time.Time, maxAttempts int, interval time.Duration) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = p.cfg.PollAttempts
	}
	if interval <= 0 {
		interval = p.cfg.PollInterval
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		code, err := p.checkOnce(ctx, sentAfter)
		if err != nil {
			// Connection trouble is forgiven per attempt, the email may
			// still arrive while we reconnect.
			log.Warn().Err(err).Int("attempt", attempt).Msg("mailbox check failed")
		}
		if code != "" {
			log.Info().Int("attempt", attempt).Msg("otp extracted from mailbox")
			return code, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}

	return "", ErrNoCode
}

func (p *Poller) checkOnce(ctx context.Context, sentAfter time.Time) (string, error) {
	sess, err := p.dial(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	for _, sender := range p.cfg.Senders {
		ids, err := sess.Search(p.unseenCriteria(sender))
		if err != nil {
			return "", err
		}

		if len(ids) == 0 {
			// A prior attempt may have marked the message read before the
			// code was used; fall back to anything recent enough.
			ids, err = sess.Search(p.recentCriteria(sender, sentAfter))
			if err != nil {
				return "", err
			}
		}

		if len(ids) == 0 {
			continue
		}

		code, err := p.extractNewest(sess, ids, sentAfter)
		if err != nil {
			return "", err
		}
		if code != "" {
			return code, nil
		}
	}

	return "", nil
}

// extractNewest reads the newest candidate message, applies the pattern
// ladder and consumes the message on a hit. Already-consumed or stale
// messages yield nothing new.
func (p *Poller) extractNewest(sess Session, ids []uint32, sentAfter time.Time) (string, error) {
	newest := ids[0]
	for _, id := range ids[1:] {
		if id > newest {
			newest = id
		}
	}

	msg, err := sess.Fetch(newest)
	if err != nil {
		return "", err
	}

	if !msg.Date.IsZero() && msg.Date.Before(sentAfter) {
		log.Debug().
			Time("message_date", msg.Date).
			Time("sent_after", sentAfter).
			Msg("ignoring otp email older than this job")
		return "", nil
	}

	code := ExtractCode(msg.Body)
	if code == "" {
		return "", nil
	}

	if err := sess.MarkSeen(newest); err != nil {
		// The code is still good; worst case a later poll re-reads a
		// message the sentAfter window will reject.
		log.Warn().Err(err).Uint32("seq", newest).Msg("could not mark otp email seen")
	}

	return code, nil
}

func (p *Poller) unseenCriteria(sender string) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Header.Add("From", sender)
	if p.cfg.Subject != "" {
		criteria.Header.Add("Subject", p.cfg.Subject)
	}
	return criteria
}

func (p *Poller) recentCriteria(sender string, sentAfter time.Time) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("From", sender)
	if p.cfg.Subject != "" {
		criteria.Header.Add("Subject", p.cfg.Subject)
	}
	since := sentAfter
	if p.cfg.RecencyWindow > 0 {
		floor := time.Now().Add(-p.cfg.RecencyWindow)
		if floor.After(since) {
			since = floor
		}
	}
	// IMAP SINCE has date granularity; the sentAfter check on the fetched
	// message does the fine filtering.
	criteria.Since = since
	return criteria
}
