package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	domcheckout "github.com/Zhima-Mochi/minishop-storefront/internal/domain/checkout"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
)

// Committer is the order reconciler as checkout sees it.
type Committer interface {
	application.UseCase[apporder.CommitOrderInput, *apporder.CommitOrderResult]
	Lookup(ctx context.Context, userID int64, method payment.Method, reference string) (*apporder.CommitOrderResult, error)
}

// QRStatus is what a polling client gets back. Order is set once the payment became an order.
type QRStatus struct {
	Status apppay.PollStatus
	Order  *apporder.CommitOrderResult
}

// Payments walks a selection through one of the payment adapters into the reconciler. A
// provider handle is stored on the selection when the payment starts, and a confirmation
// is only committed for the handle its selection issued. The selection is cleared once the
// order exists.
type Payments struct {
	checkout *Service
	commit   Committer
	capture  *apppay.CaptureAdapter
	qr       *apppay.QRAdapter
	hosted   *apppay.HostedAdapter
	log      observability.Logger
}

func NewPayments(
	checkout *Service,
	commit Committer,
	capture *apppay.CaptureAdapter,
	qr *apppay.QRAdapter,
	hosted *apppay.HostedAdapter,
	tel observability.Observability,
) *Payments {
	return &Payments{
		checkout: checkout,
		commit:   commit,
		capture:  capture,
		qr:       qr,
		hosted:   hosted,
		log:      observability.LoggerOf(tel).With(observability.F("service", checkoutService)),
	}
}

func (p *Payments) StartCapture(ctx context.Context, userID int64) (*apppay.CaptureIntent, error) {
	preview, err := p.checkout.Preview(ctx, userID)
	if err != nil {
		return nil, err
	}
	intent, err := p.capture.CreateIntent(ctx, preview.Total)
	if err != nil {
		return nil, err
	}
	preview.Session.CaptureIntentID = intent.ID
	if err := p.checkout.bind(ctx, preview.Session); err != nil {
		return nil, err
	}
	return intent, nil
}

// CompleteCapture captures intentID and commits the selection it was started for.
func (p *Payments) CompleteCapture(ctx context.Context, userID int64, intentID string) (*apporder.CommitOrderResult, error) {
	if done, err := p.commit.Lookup(ctx, userID, payment.MethodPayPal, intentID); err != nil || done != nil {
		return done, err
	}
	sess, err := p.checkout.Session(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess.CaptureIntentID == "" || sess.CaptureIntentID != intentID {
		return nil, fmt.Errorf("%w: capture %s was not started by this checkout", order.ErrForbidden, intentID)
	}
	c, err := p.capture.Capture(ctx, intentID)
	if err != nil {
		return nil, err
	}
	return p.finish(ctx, sess, c)
}

func (p *Payments) IssueQR(ctx context.Context, userID int64) (*apppay.QRSession, error) {
	preview, err := p.checkout.Preview(ctx, userID)
	if err != nil {
		return nil, err
	}
	qr, err := p.qr.Issue(ctx, userID, preview.Total)
	if err != nil {
		return nil, err
	}
	preview.Session.QRReference = qr.Reference
	if err := p.checkout.bind(ctx, preview.Session); err != nil {
		return nil, err
	}
	return qr, nil
}

// PollQR reports a QR session and commits the order the first time the provider reports it
// paid.
func (p *Payments) PollQR(ctx context.Context, userID int64, reference string) (*QRStatus, error) {
	res, err := p.qr.Poll(ctx, userID, reference)
	if err != nil {
		return nil, err
	}
	switch {
	case res.OrderID != nil:
		done, err := p.commit.Lookup(ctx, userID, payment.MethodNETSQR, reference)
		if err != nil {
			return nil, err
		}
		return &QRStatus{Status: apppay.PollPaid, Order: done}, nil
	case res.Confirmation == nil:
		return &QRStatus{Status: res.Status}, nil
	}

	sess, err := p.checkout.Session(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess.QRReference != reference {
		return nil, fmt.Errorf("%w: qr %s was not issued by this checkout", order.ErrForbidden, reference)
	}
	done, err := p.finish(ctx, sess, *res.Confirmation)
	if err != nil {
		return nil, err
	}
	return &QRStatus{Status: apppay.PollPaid, Order: done}, nil
}

func (p *Payments) StartHosted(ctx context.Context, userID int64, email string) (*apppay.HostedSession, error) {
	preview, err := p.checkout.Preview(ctx, userID)
	if err != nil {
		return nil, err
	}
	hs, err := p.hosted.Create(ctx, userID, preview.Total, email)
	if err != nil {
		return nil, err
	}
	preview.Session.HostedRequestID = hs.RequestID
	if err := p.checkout.bind(ctx, preview.Session); err != nil {
		return nil, err
	}
	return hs, nil
}

// HostedStatus reports the provider status of requestID. The request must belong to the
// user's checkout, or to an order of theirs once the checkout was cleared.
func (p *Payments) HostedStatus(ctx context.Context, userID int64, requestID string) (string, error) {
	sess, err := p.checkout.Session(ctx, userID)
	if err != nil && !errors.Is(err, order.ErrSelectionEmpty) {
		return "", err
	}
	if err != nil || sess.HostedRequestID != requestID {
		done, err := p.commit.Lookup(ctx, userID, payment.MethodHitPay, requestID)
		if err != nil {
			return "", err
		}
		if done == nil {
			return "", fmt.Errorf("%w: hosted payment %s was not started by this checkout", order.ErrForbidden, requestID)
		}
	}
	return p.hosted.Status(ctx, requestID)
}

// ConfirmHosted confirms the hosted payment of the user's checkout. The request id stored on
// the selection wins over claimedID, which arrives in a redirect and is not trusted. Without
// a selection claimedID can only return an order that already exists.
func (p *Payments) ConfirmHosted(ctx context.Context, userID int64, claimedID string) (*apporder.CommitOrderResult, error) {
	logger := logctx.FromOr(ctx, p.log)

	sess, err := p.checkout.Session(ctx, userID)
	switch {
	case errors.Is(err, order.ErrSelectionEmpty):
		if claimedID == "" {
			return nil, err
		}
		done, lookupErr := p.commit.Lookup(ctx, userID, payment.MethodHitPay, claimedID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if done == nil {
			return nil, err
		}
		return done, nil
	case err != nil:
		return nil, err
	}

	requestID := sess.HostedRequestID
	if requestID == "" {
		return nil, fmt.Errorf("%w: no hosted payment started for this checkout", order.ErrSelectionInvalid)
	}
	if claimedID != "" && claimedID != requestID {
		logger.Warn("hosted_reference_mismatch",
			observability.F("user_id", userID),
			observability.F("claimed_reference", claimedID),
			observability.F("session_reference", requestID),
		)
	}

	if done, err := p.commit.Lookup(ctx, userID, payment.MethodHitPay, requestID); err != nil || done != nil {
		if done != nil {
			p.clear(ctx, sess)
		}
		return done, err
	}
	c, err := p.hosted.Confirm(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return p.finish(ctx, sess, c)
}

// finish commits the selection for a paid confirmation and clears it. The selection stays
// when the commit fails so the same confirmation can be retried.
func (p *Payments) finish(ctx context.Context, sess *domcheckout.Session, c payment.Confirmation) (*apporder.CommitOrderResult, error) {
	res, err := p.commit.Execute(ctx, apporder.CommitOrderInput{
		UserID:     sess.UserID,
		ProductIDs: sess.ProductIDs,
		Payment:    c,
	})
	if err != nil {
		return nil, err
	}
	p.clear(ctx, sess)
	return res, nil
}

func (p *Payments) clear(ctx context.Context, sess *domcheckout.Session) {
	if err := p.checkout.sessions.Delete(ctx, sess.UserID); err != nil {
		logctx.FromOr(ctx, p.log).Warn("selection_clear_failed",
			observability.F("user_id", sess.UserID),
			observability.F("error", err.Error()),
		)
	}
}
