package breakglass

import (
	"context"
	"crypto/rand"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

const ticketPrefix = "BG-"

var (
	// errors
	ErrNotFound      = errors.New("break-glass grant not found")
	ErrAlreadyActive = errors.New("user already has an active break-glass grant")
	ErrNotActive     = errors.New("break-glass grant is not active")

	errTargetIsAdmin        = "user is already an admin"
	errTargetInactive       = "user account is deactivated"
	errSelfPromotionOff     = "self-promotion is disabled"
	errNotEligible          = "your roles are not eligible for self-promotion"
	errGrantOthersForbidden = "only admins may grant break-glass access to other users"
	errDeactivateForbidden  = "only the grantee or an admin may deactivate a grant"
)

type (
	Repository interface {
		// LockUser runs fn within a transaction holding an exclusive lock on the grants of userID.
		// Repository calls made through the repo passed to fn take part in the transaction.
		LockUser(ctx context.Context, userID string, fn func(repo Repository) error) error

		CreateGrant(ctx context.Context, g Grant) (Grant, error)
		GetGrant(ctx context.Context, id string) (Grant, error)
		// ActiveGrant returns the grant elevating userID at `now`, or ErrNotFound.
		ActiveGrant(ctx context.Context, userID string, now time.Time) (Grant, error)
		// QueryGrants returns the matching grants, newest first.
		QueryGrants(ctx context.Context, filter QueryFilter, now time.Time) ([]Grant, error)
		UpdateGrant(ctx context.Context, g Grant) (Grant, error)
		// ExpireGrants deactivates, with ReasonExpired, the grants past their expiry at `now`.
		// It returns the number of grants expired.
		ExpireGrants(ctx context.Context, now time.Time) (int, error)
	}

	// UserFinder is the subset of user.ServiceInterface needed here.
	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		QueryAdmins(ctx context.Context) ([]user.User, error)
	}

	ServiceInterface interface {
		Activate(ctx context.Context, actor user.User, a Activation) (Grant, error)
		Deactivate(ctx context.Context, actor user.User, grantID string, d Deactivation) (Grant, error)
		Active(ctx context.Context, userID string, now time.Time) (Grant, error)
		Query(ctx context.Context, filter QueryFilter) ([]Grant, error)
		ExpireStale(ctx context.Context, now time.Time) (int, error)
	}

	Service struct {
		repo    Repository
		users   UserFinder
		mailSvc core.EmailService
		logger  core.Logger
		conf    core.BreakGlassConfig
		now     func() time.Time
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, users UserFinder, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:    repo,
		users:   users,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf.BreakGlass,
		now:     time.Now,
	}
}

// Activate grants temporary admin rights to a.UserID. Admins may grant any active non-admin user;
// other users may only promote themselves, when enabled and their roles are eligible.
// Admins are notified of self-promotions.
func (svc *Service) Activate(ctx context.Context, actor user.User, a Activation) (Grant, error) {
	if a.UserID == "" {
		a.UserID = actor.ID
	}
	selfPromoted := a.UserID == actor.ID

	target := actor
	if !selfPromoted {
		if !actor.IsAdmin() {
			return Grant{}, core.NewPermissionError(errGrantOthersForbidden)
		}
		var err error
		if target, err = svc.users.GetByID(ctx, a.UserID); err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return Grant{}, core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: err.Error()})
			}
			return Grant{}, errors.Wrap(err, "finding user")
		}
	}

	if target.IsAdmin() {
		return Grant{}, core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: errTargetIsAdmin})
	}
	if !target.IsActive {
		return Grant{}, core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: errTargetInactive})
	}
	if selfPromoted {
		if !svc.conf.AllowSelfPromotion {
			return Grant{}, core.NewPermissionError(errSelfPromotionOff)
		}
		if !target.HasAnyRole(svc.conf.EligibleRoles...) {
			return Grant{}, core.NewPermissionError(errNotEligible)
		}
	}

	ticket, err := newTicket()
	if err != nil {
		return Grant{}, errors.Wrap(err, "generating ticket")
	}
	now := svc.now().UTC()
	g := Grant{
		Ticket:       ticket,
		UserID:       target.ID,
		GrantedBy:    actor.ID,
		Reason:       a.Reason,
		SelfPromoted: selfPromoted,
		ActivatedAt:  now,
		ExpiresAt:    now.Add(svc.duration(a.Duration)),
	}

	err = svc.repo.LockUser(ctx, target.ID, func(repo Repository) error {
		if _, err := repo.ActiveGrant(ctx, target.ID, now); err == nil {
			return ErrAlreadyActive
		} else if errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "finding active grant")
		}
		var err error
		g, err = repo.CreateGrant(ctx, g)
		return errors.Wrap(err, "creating grant")
	})
	if err != nil {
		return Grant{}, err
	}

	svc.logger.Warn("break-glass grant activated", map[string]interface{}{
		"ticket": g.Ticket, "user_id": g.UserID, "granted_by": g.GrantedBy, "expires_at": g.ExpiresAt,
	}, actor)
	if selfPromoted {
		svc.notifyAdmins(ctx, target, g)
	}
	return g, nil
}

// Deactivate ends a grant before its expiry.
func (svc *Service) Deactivate(ctx context.Context, actor user.User, grantID string, d Deactivation) (Grant, error) {
	g, err := svc.repo.GetGrant(ctx, grantID)
	if err != nil {
		return Grant{}, err
	}
	if g.UserID != actor.ID && !actor.IsAdmin() {
		return Grant{}, core.NewPermissionError(errDeactivateForbidden)
	}

	err = svc.repo.LockUser(ctx, g.UserID, func(repo Repository) error {
		// reload within the lock
		g, err = repo.GetGrant(ctx, grantID)
		if err != nil {
			return err
		}
		now := svc.now().UTC()
		if !g.IsActive(now) {
			return ErrNotActive
		}
		g.DeactivatedAt = &now
		g.DeactivatedBy = actor.ID
		g.DeactivationReason = d.Reason
		g, err = repo.UpdateGrant(ctx, g)
		return errors.Wrap(err, "updating grant")
	})
	if err != nil {
		return Grant{}, err
	}

	svc.logger.Info("break-glass grant deactivated", map[string]interface{}{"ticket": g.Ticket, "user_id": g.UserID}, actor)
	return g, nil
}

func (svc *Service) Active(ctx context.Context, userID string, now time.Time) (Grant, error) {
	return svc.repo.ActiveGrant(ctx, userID, now.UTC())
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Grant, error) {
	return svc.repo.QueryGrants(ctx, filter, svc.now().UTC())
}

// ExpireStale marks the grants past their expiry as deactivated.
func (svc *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	n, err := svc.repo.ExpireGrants(ctx, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "expiring grants")
	}
	if n > 0 {
		svc.logger.Info("break-glass grants expired", map[string]interface{}{"count": n})
	}
	return n, nil
}

func (svc *Service) duration(minutes int) time.Duration {
	d := svc.conf.DefaultDuration
	if minutes > 0 {
		d = time.Duration(minutes) * time.Minute
	}
	if svc.conf.MaxDuration > 0 && d > svc.conf.MaxDuration {
		d = svc.conf.MaxDuration
	}
	return d
}

func (svc *Service) notifyAdmins(ctx context.Context, usr user.User, g Grant) {
	admins, err := svc.users.QueryAdmins(ctx)
	if err != nil {
		svc.logger.Error("notifying admins of self-promotion", errors.Wrap(err, "querying admins"), usr)
		return
	}

	messages := make([]*core.EmailMessage, 0, len(admins))
	for _, admin := range admins {
		if admin.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: admin.Name, Address: admin.Email}},
			Subject:      "Break-glass access activated",
			TemplateName: "breakglass_activated",
			TemplateData: map[string]string{
				"Name":      usr.Name,
				"Username":  usr.Username,
				"Ticket":    g.Ticket,
				"Reason":    g.Reason,
				"ExpiresAt": g.ExpiresAt.Format(time.RFC1123),
			},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}

// newTicket returns a short code identifying a grant in out-of-band audits.
func newTicket() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return ticketPrefix + base58.Encode(b), nil
}
