package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/model"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
		db.Close()
	})
	return NewStore(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var (
	ctx      = context.Background()
	now      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dupEntry = &mysql.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry"}
)

func TestGetGroupNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(q("FROM ticket_groups g WHERE g.id = ?")).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "leader_id", "fixture_id", "status", "created_at"}))

	if _, err := st.GetGroup(ctx, 5); !errors.Is(err, admission.ErrGroupNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestCreateGroupReadsBack(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(q("INSERT INTO ticket_groups")).WithArgs(1, 2, "WAITING", now).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectQuery(q("FROM ticket_groups g WHERE g.id = ?")).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "leader_id", "fixture_id", "status", "created_at"}).
			AddRow(9, 1, 2, "WAITING", now))

	g, err := st.CreateGroup(ctx, 1, 2, now)
	if err != nil {
		t.Fatal(err)
	}
	if g.ID != 9 || g.Status != model.GroupWaiting || !g.CreatedAt.Equal(now) {
		t.Fatalf("group = %+v", g)
	}
}

func TestReplaceTierRanks(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status FROM ticket_groups WHERE id = ? FOR UPDATE")).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("WAITING"))
	mock.ExpectExec(q("DELETE FROM group_tiers WHERE group_id = ?")).WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(q("INSERT INTO group_tiers (group_id, tier_id, tier_rank) VALUES (?, ?, ?),(?, ?, ?)")).
		WithArgs(7, 1, 2, 7, 3, 1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := st.ReplaceTierRanks(ctx, 7, map[uint64]int{3: 1, 1: 2}); err != nil {
		t.Fatal(err)
	}
}

func TestReplaceTierRanksAfterOffer(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status FROM ticket_groups")).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("OFFERED"))
	mock.ExpectRollback()

	if err := st.ReplaceTierRanks(ctx, 7, map[uint64]int{1: 1}); !errors.Is(err, admission.ErrNotWaiting) {
		t.Fatalf("got %v", err)
	}
}

func TestCreateOfferDuplicate(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status FROM ticket_groups")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("OFFERED"))
	mock.ExpectExec(q("INSERT INTO offers")).WillReturnError(dupEntry)
	mock.ExpectRollback()

	_, err := st.CreateOffer(ctx, 4, 2, now, now.Add(10*time.Minute))
	if !errors.Is(err, admission.ErrOfferExists) {
		t.Fatalf("got %v", err)
	}
}

func TestCreateOfferFlipsGroup(t *testing.T) {
	st, mock := newMock(t)
	exp := now.Add(10 * time.Minute)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status FROM ticket_groups")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("WAITING"))
	mock.ExpectExec(q("INSERT INTO offers")).WithArgs(4, 2, now, exp).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(q("UPDATE ticket_groups SET status = ? WHERE id = ?")).WithArgs("OFFERED", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM offers WHERE id = ?")).WithArgs(11).
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "tier_id", "issued_at", "expires_at", "is_reclaimed"}).
			AddRow(11, 4, 2, now, exp, false))
	mock.ExpectCommit()

	o, err := st.CreateOffer(ctx, 4, 2, now, exp)
	if err != nil {
		t.Fatal(err)
	}
	if o.ID != 11 || o.IsReclaimed || !o.ExpiresAt.Equal(exp) {
		t.Fatalf("offer = %+v", o)
	}
}

func expectOfferLock(mock sqlmock.Sqlmock, expires time.Time, reclaimed bool) {
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT group_id, expires_at, is_reclaimed FROM offers WHERE id = ? FOR UPDATE")).WithArgs(11).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "expires_at", "is_reclaimed"}).AddRow(4, expires, reclaimed))
	mock.ExpectQuery(q("SELECT group_id FROM payment_groups WHERE id = ?")).WithArgs(21).
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow(4))
}

func payInput() admission.PaymentInput {
	return admission.PaymentInput{
		OfferID:        11,
		PaymentGroupID: 21,
		Attendees:      []uint64{1, 2},
		TicketCodes:    []string{"code-a", "code-b"},
		Amount:         decimal.RequireFromString("51"),
		Now:            now,
	}
}

func TestPay(t *testing.T) {
	st, mock := newMock(t)
	expectOfferLock(mock, now.Add(time.Minute), false)
	mock.ExpectQuery(q("SELECT id FROM transactions WHERE payment_group_id = ?")).WithArgs(21).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(q("INSERT INTO transactions")).WithArgs(11, 21, "51.00", now).
		WillReturnResult(sqlmock.NewResult(31, 1))
	mock.ExpectExec(q("INSERT INTO tickets (transaction_id, attendee_id, code) VALUES (?, ?, ?),(?, ?, ?)")).
		WithArgs(31, 1, "code-a", 31, 2, "code-b").
		WillReturnResult(sqlmock.NewResult(41, 2))
	mock.ExpectQuery(q("FROM tickets WHERE transaction_id = ?")).WithArgs(31).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id", "attendee_id", "code", "notification_sent_at"}).
			AddRow(41, 31, 1, "code-a", nil).
			AddRow(42, 31, 2, "code-b", nil))
	mock.ExpectCommit()

	txn, tickets, err := st.Pay(ctx, payInput())
	if err != nil {
		t.Fatal(err)
	}
	if txn.ID != 31 || !txn.Amount.Equal(decimal.NewFromInt(51)) {
		t.Fatalf("txn = %+v", txn)
	}
	if len(tickets) != 2 || tickets[1].Code != "code-b" || tickets[0].NotificationSentAt != nil {
		t.Fatalf("tickets = %+v", tickets)
	}
}

func TestPayAlreadyPaid(t *testing.T) {
	st, mock := newMock(t)
	expectOfferLock(mock, now.Add(time.Minute), false)
	mock.ExpectQuery(q("SELECT id FROM transactions WHERE payment_group_id = ?")).WithArgs(21).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))
	mock.ExpectRollback()

	if _, _, err := st.Pay(ctx, payInput()); !errors.Is(err, admission.ErrAlreadyPaid) {
		t.Fatalf("got %v", err)
	}
}

func TestPayDuplicateInsert(t *testing.T) {
	st, mock := newMock(t)
	expectOfferLock(mock, now.Add(time.Minute), false)
	mock.ExpectQuery(q("SELECT id FROM transactions")).WithArgs(21).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(q("INSERT INTO transactions")).WillReturnError(dupEntry)
	mock.ExpectRollback()

	if _, _, err := st.Pay(ctx, payInput()); !errors.Is(err, admission.ErrAlreadyPaid) {
		t.Fatalf("got %v", err)
	}
}

func TestPayRejectsReclaimedAndExpired(t *testing.T) {
	cases := []struct {
		name      string
		expires   time.Time
		reclaimed bool
	}{
		{"reclaimed", now.Add(time.Minute), true},
		{"expired", now.Add(-time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, mock := newMock(t)
			expectOfferLock(mock, tc.expires, tc.reclaimed)
			mock.ExpectRollback()
			if _, _, err := st.Pay(ctx, payInput()); !errors.Is(err, admission.ErrOfferExpired) {
				t.Fatalf("got %v", err)
			}
		})
	}
}

func TestClaimExpiredOffersNone(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("WHERE is_reclaimed = FALSE AND expires_at < ?")).WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tier_id"}))
	mock.ExpectCommit()

	got, err := st.ClaimExpiredOffers(ctx, now)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestClaimExpiredOffers(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("WHERE is_reclaimed = FALSE AND expires_at < ?")).WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tier_id"}).AddRow(1, 10).AddRow(2, 20))
	// offer 2 is fully paid so it has no unpaid seats row
	mock.ExpectQuery(q("WHERE o.id IN (?,?) AND t.id IS NULL")).WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seats"}).AddRow(1, 3))
	mock.ExpectExec(q("UPDATE offers SET is_reclaimed = TRUE WHERE id IN (?,?)")).WithArgs(1, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	got, err := st.ClaimExpiredOffers(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	want := []model.ReclaimedOffer{{OfferID: 1, TierID: 10, Seats: 3}, {OfferID: 2, TierID: 20, Seats: 0}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestClaimExpiredOffersRollsBackOnError(t *testing.T) {
	st, mock := newMock(t)
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectQuery(q("WHERE is_reclaimed = FALSE")).WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tier_id"}).AddRow(1, 10))
	mock.ExpectQuery(q("AND t.id IS NULL")).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seats"}).AddRow(1, 2))
	mock.ExpectExec(q("UPDATE offers SET is_reclaimed = TRUE")).WithArgs(1).WillReturnError(boom)
	mock.ExpectRollback()

	if _, err := st.ClaimExpiredOffers(ctx, now); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}

func TestMarkTicketNotified(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(q("UPDATE tickets SET notification_sent_at = ? WHERE id = ? AND notification_sent_at IS NULL")).
		WithArgs(now, 9).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.MarkTicketNotified(ctx, 9, now); err != nil {
		t.Fatal(err)
	}
}

func TestListPaymentGroupsFoldsAttendees(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(q("FROM payment_groups pg")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "payee_id", "user_id"}).
			AddRow(1, 4, 10, 10).
			AddRow(1, 4, 10, 12).
			AddRow(2, 4, 11, 11))

	got, err := st.ListPaymentGroups(ctx, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || len(got[0].Attendees) != 2 || got[0].Attendees[1] != 12 || got[1].PayeeID != 11 {
		t.Fatalf("got %+v", got)
	}
}

func TestQueuedAttendeesEmpty(t *testing.T) {
	st, _ := newMock(t)
	got, err := st.QueuedAttendees(ctx, 1, nil)
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestCommittedSeats(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(q("WHERE o.is_reclaimed = FALSE")).
		WillReturnRows(sqlmock.NewRows([]string{"tier_id", "n"}).AddRow(1, 4).AddRow(2, 1))
	mock.ExpectQuery(q("WHERE o.is_reclaimed = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"tier_id", "n"}).AddRow(1, 2))

	got, err := st.CommittedSeats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got[1] != 6 || got[2] != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestGetTierNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(q("FROM tiers WHERE id = ?")).WithArgs(3).WillReturnError(sql.ErrNoRows)

	if _, err := st.GetTier(ctx, 3); !errors.Is(err, admission.ErrTierNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestCreatePaymentGroupsLocksWaitingGroup(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status FROM ticket_groups WHERE id = ? FOR UPDATE")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("WAITING"))
	mock.ExpectExec(q("INSERT INTO payment_groups (group_id, payee_id) VALUES (?, ?)")).WithArgs(4, 1).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(q("INSERT INTO payment_group_attendees (payment_group_id, user_id) VALUES (?, ?),(?, ?)")).
		WithArgs(11, 1, 11, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	pgs, err := st.CreatePaymentGroups(ctx, 4, map[uint64][]uint64{1: {1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if len(pgs) != 1 || pgs[0].ID != 11 || len(pgs[0].Attendees) != 2 {
		t.Fatalf("payment groups = %+v", pgs)
	}
}

func TestCreatePaymentGroupsAfterOffer(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status FROM ticket_groups WHERE id = ? FOR UPDATE")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("OFFERED"))
	mock.ExpectRollback()

	if _, err := st.CreatePaymentGroups(ctx, 4, map[uint64][]uint64{1: {1, 2}}); !errors.Is(err, admission.ErrNotWaiting) {
		t.Fatalf("got %v, want ErrNotWaiting", err)
	}
}

func TestDeleteGroup(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM ticket_groups WHERE id = ? FOR UPDATE")).WithArgs(6).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(6))
	mock.ExpectQuery(q("SELECT id FROM offers WHERE group_id = ?")).WithArgs(6).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(q("DELETE FROM ticket_groups WHERE id = ?")).WithArgs(6).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := st.DeleteGroup(ctx, 6); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteGroupKeepsOfferedGroup(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM ticket_groups WHERE id = ? FOR UPDATE")).WithArgs(6).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(6))
	mock.ExpectQuery(q("SELECT id FROM offers WHERE group_id = ?")).WithArgs(6).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))
	mock.ExpectRollback()

	if err := st.DeleteGroup(ctx, 6); !errors.Is(err, admission.ErrOfferExists) {
		t.Fatalf("got %v, want ErrOfferExists", err)
	}
}
