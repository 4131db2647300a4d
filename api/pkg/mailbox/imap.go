package mailbox

import (
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/squidgyai/hlprovision/api/pkg/config"
)

// imapSession wraps one logged-in IMAP-over-TLS connection.
type imapSession struct {
	c *client.Client
}

func dialIMAP(cfg config.Mailbox) (Session, error) {
	addr := fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort)

	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login for %s: %w", cfg.Username, err)
	}

	if _, err := c.Select("INBOX", false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("selecting inbox: %w", err)
	}

	return &imapSession{c: c}, nil
}

func (s *imapSession) Search(criteria *imap.SearchCriteria) ([]uint32, error) {
	return s.c.Search(criteria)
}

func (s *imapSession) Fetch(seqNum uint32) (Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNum)

	// Peek keeps the fetch from marking the message seen; consumption is an
	// explicit, separate step.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchInternalDate}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(seqset, items, ch)
	}()

	msg := <-ch
	if err := <-done; err != nil {
		return Message{}, fmt.Errorf("fetching message %d: %w", seqNum, err)
	}
	if msg == nil {
		return Message{}, fmt.Errorf("message %d not returned by server", seqNum)
	}

	r := msg.GetBody(section)
	if r == nil {
		return Message{}, fmt.Errorf("message %d has no body section", seqNum)
	}

	body, err := ExtractBody(r)
	if err != nil {
		return Message{}, fmt.Errorf("parsing message %d body: %w", seqNum, err)
	}

	return Message{
		SeqNum: seqNum,
		Date:   msg.InternalDate,
		Body:   body,
	}, nil
}

func (s *imapSession) MarkSeen(seqNum uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNum)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	return s.c.Store(seqset, item, flags, nil)
}

func (s *imapSession) Close() error {
	return s.c.Logout()
}
