package payment_test

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlstore"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/sqlstore/sqlitetest"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQR struct {
	mu      sync.Mutex
	code    apppay.QRCode
	state   apppay.QRState
	err     error
	queries int
}

func (f *fakeQR) RequestQR(context.Context, string, decimal.Decimal) (*apppay.QRCode, error) {
	c := f.code
	return &c, nil
}

func (f *fakeQR) QueryQR(context.Context, string) (*apppay.QRState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.err != nil {
		return nil, f.err
	}
	s := f.state
	return &s, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type logEntry struct {
	msg    string
	fields map[string]any
}

// warnLog keeps the entries logged at warn level.
type warnLog struct {
	mu      sync.Mutex
	entries []logEntry
}

type recordingLogger struct {
	sink   *warnLog
	fields []observability.Field
}

func (l recordingLogger) With(fields ...observability.Field) observability.Logger {
	return recordingLogger{sink: l.sink, fields: append(append([]observability.Field{}, l.fields...), fields...)}
}

func (recordingLogger) Debug(string, ...observability.Field) {}
func (recordingLogger) Info(string, ...observability.Field) {}
func (recordingLogger) Error(string, ...observability.Field) {}

func (l recordingLogger) Warn(msg string, fields ...observability.Field) {
	e := logEntry{msg: msg, fields: map[string]any{}}
	for _, f := range append(append([]observability.Field{}, l.fields...), fields...) {
		e.fields[f.Key] = f.Value
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = append(l.sink.entries, e)
}

func (w *warnLog) messages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.entries))
	for _, e := range w.entries {
		out = append(out, e.msg)
	}
	return out
}

func newQRFixture(t *testing.T) (*apppay.QRAdapter, *fakeQR, *sqlstore.Store, *clock) {
	t.Helper()
	s, _ := sqlitetest.Open(t)
	gw := &fakeQR{code: apppay.QRCode{RetrievalRef: "NETS-REF-1", ImagePNG: []byte("png-bytes")}}
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	a := apppay.NewQRAdapter(gw, s, "SGD", nil, apppay.WithQRClock(clk.now))
	return a, gw, s, clk
}

func TestQRIssueRecordsPendingPayment(t *testing.T) {
	ctx := context.Background()
	a, _, s, clk := newQRFixture(t)

	sess, err := a.Issue(ctx, 7, decimal.RequireFromString("12.30"))
	require.NoError(t, err)
	assert.Equal(t, "NETS-REF-1", sess.Reference)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), sess.QRImage)
	assert.Equal(t, clk.t.Add(apppay.DefaultQRWindow), sess.ExpiresAt)

	rec, err := s.FindByReference(ctx, payment.MethodNETSQR, "NETS-REF-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, rec.Status)
	assert.False(t, rec.Linked())
	assert.Equal(t, int64(7), rec.UserID)
}

func TestQRIssueRendersPayloadLocally(t *testing.T) {
	s, _ := sqlitetest.Open(t)
	gw := &fakeQR{code: apppay.QRCode{RetrievalRef: "NETS-REF-2", Payload: "00020101021226"}}
	var rendered string
	a := apppay.NewQRAdapter(gw, s, "SGD", nil, apppay.WithQRRenderer(func(payload string) ([]byte, error) {
		rendered = payload
		return []byte("local"), nil
	}))

	sess, err := a.Issue(context.Background(), 7, decimal.RequireFromString("1.00"))
	require.NoError(t, err)
	assert.Equal(t, "00020101021226", rendered)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("local")), sess.QRImage)
}

func TestQRPollStatuses(t *testing.T) {
	cases := []struct {
		name   string
		state  apppay.QRState
		want   apppay.PollStatus
		stored payment.Status
	}{
		{"paid", apppay.QRState{ResponseCode: "00", TxnStatus: 1}, apppay.PollPaid, payment.StatusPending},
		{"pending", apppay.QRState{ResponseCode: "00", TxnStatus: 0}, apppay.PollPending, payment.StatusPending},
		{"pending code", apppay.QRState{ResponseCode: "09"}, apppay.PollPending, payment.StatusPending},
		{"declined", apppay.QRState{ResponseCode: "00", TxnStatus: 2}, apppay.PollFailed, payment.StatusFailed},
		{"error code", apppay.QRState{ResponseCode: "68"}, apppay.PollFailed, payment.StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			a, gw, s, _ := newQRFixture(t)
			_, err := a.Issue(ctx, 7, decimal.RequireFromString("12.30"))
			require.NoError(t, err)
			gw.state = tc.state

			res, err := a.Poll(ctx, 7, "NETS-REF-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Status)
			if tc.want == apppay.PollPaid {
				require.NotNil(t, res.Confirmation)
				assert.True(t, res.Confirmation.Paid())
				assert.True(t, res.Confirmation.Amount.Equal(decimal.RequireFromString("12.30")))
			}

			rec, err := s.FindByReference(ctx, payment.MethodNETSQR, "NETS-REF-1")
			require.NoError(t, err)
			assert.Equal(t, tc.stored, rec.Status)
		})
	}
}

func TestQRTimeoutIsSticky(t *testing.T) {
	ctx := context.Background()
	a, gw, s, clk := newQRFixture(t)
	_, err := a.Issue(ctx, 7, decimal.RequireFromString("12.30"))
	require.NoError(t, err)

	clk.t = clk.t.Add(apppay.DefaultQRWindow + time.Second)
	res, err := a.Poll(ctx, 7, "NETS-REF-1")
	require.NoError(t, err)
	assert.Equal(t, apppay.PollTimedOut, res.Status)
	assert.Zero(t, gw.queries, "an elapsed window does not ask the provider")

	gw.state = apppay.QRState{ResponseCode: "00", TxnStatus: 1}
	res, err = a.Poll(ctx, 7, "NETS-REF-1")
	require.NoError(t, err)
	assert.Equal(t, apppay.PollTimedOut, res.Status, "late success must not revive the session")
	assert.Nil(t, res.Confirmation)

	rec, err := s.FindByReference(ctx, payment.MethodNETSQR, "NETS-REF-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusExpired, rec.Status)
}

func TestQRExpiryIsLoggedOnce(t *testing.T) {
	sink := &warnLog{}
	ctx := logctx.With(context.Background(), recordingLogger{sink: sink})
	a, gw, _, clk := newQRFixture(t)
	gw.state = apppay.QRState{ResponseCode: apppay.QRResponsePending}
	_, err := a.Issue(ctx, 7, decimal.RequireFromString("12.30"))
	require.NoError(t, err)

	res, err := a.Poll(ctx, 7, "NETS-REF-1")
	require.NoError(t, err)
	assert.Equal(t, apppay.PollPending, res.Status)
	assert.Empty(t, sink.messages())

	clk.t = clk.t.Add(apppay.DefaultQRWindow + time.Second)
	for i := 0; i < 2; i++ {
		res, err = a.Poll(ctx, 7, "NETS-REF-1")
		require.NoError(t, err)
		assert.Equal(t, apppay.PollTimedOut, res.Status)
	}

	require.Equal(t, []string{"qr_session_expired"}, sink.messages())
	e := sink.entries[0]
	assert.Equal(t, "NETS-REF-1", e.fields["reference"])
	assert.Equal(t, int64(7), e.fields["user_id"])
	assert.Equal(t, "12.30", e.fields["amount"])
	assert.Equal(t, "payment.qr.poll", e.fields["use_case"])
}

func TestQRPollLinkedRecordReturnsOrder(t *testing.T) {
	ctx := context.Background()
	a, gw, s, _ := newQRFixture(t)
	_, err := a.Issue(ctx, 7, decimal.RequireFromString("5.50"))
	require.NoError(t, err)

	mug := sqlitetest.Product(t, s, "Mug", "5.50", 3)
	sqlitetest.AddToCart(t, s, 7, mug.ID, 1)
	rec, err := s.FindByReference(ctx, payment.MethodNETSQR, "NETS-REF-1")
	require.NoError(t, err)
	o := linkToNewOrder(t, s, rec, mug.ID)

	res, err := a.Poll(ctx, 7, "NETS-REF-1")
	require.NoError(t, err)
	assert.Equal(t, apppay.PollPaid, res.Status)
	require.NotNil(t, res.OrderID)
	assert.Equal(t, o, *res.OrderID)
	assert.Zero(t, gw.queries)
}

func TestQRPollHidesOtherUsersSessions(t *testing.T) {
	ctx := context.Background()
	a, _, _, _ := newQRFixture(t)
	_, err := a.Issue(ctx, 7, decimal.RequireFromString("5.50"))
	require.NoError(t, err)

	_, err = a.Poll(ctx, 8, "NETS-REF-1")
	assert.ErrorIs(t, err, payment.ErrNotFound)
	_, err = a.Poll(ctx, 7, "NETS-UNKNOWN")
	assert.ErrorIs(t, err, payment.ErrNotFound)
}

func TestQRPollProviderErrorLeavesSessionPending(t *testing.T) {
	ctx := context.Background()
	a, gw, s, _ := newQRFixture(t)
	_, err := a.Issue(ctx, 7, decimal.RequireFromString("5.50"))
	require.NoError(t, err)
	gw.err = errors.New("502 bad gateway")

	_, err = a.Poll(ctx, 7, "NETS-REF-1")
	assert.ErrorIs(t, err, payment.ErrProviderUnavailable)
	rec, err := s.FindByReference(ctx, payment.MethodNETSQR, "NETS-REF-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, rec.Status)
}
