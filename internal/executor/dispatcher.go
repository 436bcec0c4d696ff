package executor

import (
	"context"
	"fmt"

	"github.com/Pimboto/DarkStackBackend/internal/auth"
	"github.com/Pimboto/DarkStackBackend/internal/domain/entity"
	domainerrors "github.com/Pimboto/DarkStackBackend/internal/domain/errors"
	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
	"github.com/Pimboto/DarkStackBackend/internal/pacing"
)

// ClientFactory builds the concrete SocialClient a job's account metadata
// should be routed through (e.g. pinned to that account's configured
// endpoint/proxy). Kept as an injected func so Dispatcher never imports a
// concrete adapter package.
type ClientFactory func(meta entity.AccountMetadata) service.SocialClient

// Dispatcher maps JobType to an executor, resolving authentication before
// running it with the per-job logger its caller supplies (spec §4.8).
type Dispatcher struct {
	store       service.AccountStore
	newClient   ClientFactory
	planner     *pacing.Planner
	clock       service.Clock
	rnd         service.Random
}

// New returns a Dispatcher. It holds no logger: each Dispatch call receives
// the per-job logger (see internal/logsink) from its caller, and Dispatcher
// itself is stateless across jobs.
func New(store service.AccountStore, newClient ClientFactory, planner *pacing.Planner, clock service.Clock, rnd service.Random) *Dispatcher {
	return &Dispatcher{store: store, newClient: newClient, planner: planner, clock: clock, rnd: rnd}
}

// sessionAuth adapts auth.Coordinator into the AuthRefresher interface
// PostExecutor depends on, tracking whether the last authentication attempt
// for this job is still considered valid.
type sessionAuth struct {
	coord     *auth.Coordinator
	accountID string
	session   entity.SessionData
	meta      entity.AccountMetadata
	authed    bool
}

func (s *sessionAuth) Authenticated() bool { return s.authed }

func (s *sessionAuth) Reauthenticate(ctx context.Context) error {
	res, err := s.coord.Authenticate(ctx, s.accountID, s.session, s.meta)
	if err != nil {
		s.authed = false
		return err
	}
	s.session = res.Session
	s.authed = true
	return nil
}

// Dispatch unpacks job.Payload per job.JobType, authenticates, runs the
// matching executor, and writes the executor's report onto job.Result.
func (d *Dispatcher) Dispatch(ctx context.Context, job *entity.Job, log service.Logger) error {
	switch job.JobType {
	case valueobject.JobTypeEngagement:
		return d.dispatchEngagement(ctx, job, log)
	case valueobject.JobTypeMassPost:
		return d.dispatchMassPost(ctx, job, log)
	case valueobject.JobTypeChat:
		return d.dispatchChat(ctx, job, log)
	default:
		return domainerrors.BadRequest("unknown job type %q", job.JobType)
	}
}

func (d *Dispatcher) dispatchEngagement(ctx context.Context, job *entity.Job, log service.Logger) error {
	payload, ok := job.Payload.(entity.EngagementPayload)
	if !ok {
		return domainerrors.Internal(fmt.Errorf("engagement job payload has unexpected type %T", job.Payload))
	}

	client := d.newClient(payload.AccountMetadata)
	sess := d.authFor(client, payload.AccountMetadata, payload.SessionData, log)
	if err := sess.Reauthenticate(ctx); err != nil {
		return domainerrors.AuthExhausted(err)
	}

	plan, err := d.planner.Plan(payload.StrategyType, payload.EngagementOptions)
	if err != nil {
		return domainerrors.BadRequest("%v", err)
	}

	exec := NewEngagementExecutor(client, d.clock, log)
	report, err := exec.Run(ctx, plan, EngagementOptions{
		OnProgress: func(a entity.PlannedAction, i int) {
			job.SetProgress((i + 1) * 100 / len(plan.Actions))
		},
	})
	if err != nil {
		return err
	}
	job.Result = report
	return nil
}

func (d *Dispatcher) dispatchMassPost(ctx context.Context, job *entity.Job, log service.Logger) error {
	payload, ok := job.Payload.(entity.MassPostPayload)
	if !ok {
		return domainerrors.Internal(fmt.Errorf("massPost job payload has unexpected type %T", job.Payload))
	}

	client := d.newClient(payload.AccountMetadata)
	sess := d.authFor(client, payload.AccountMetadata, payload.SessionData, log)
	if err := sess.Reauthenticate(ctx); err != nil {
		return domainerrors.AuthExhausted(err)
	}

	exec := NewPostExecutor(client, sess, d.clock, d.rnd, log)
	report, err := exec.Run(ctx, payload.PostOptions)
	if err != nil {
		return err
	}
	job.Result = report
	return nil
}

func (d *Dispatcher) dispatchChat(ctx context.Context, job *entity.Job, log service.Logger) error {
	payload, ok := job.Payload.(entity.ChatPayload)
	if !ok {
		return domainerrors.Internal(fmt.Errorf("chat job payload has unexpected type %T", job.Payload))
	}

	client := d.newClient(payload.AccountMetadata)
	sess := d.authFor(client, payload.AccountMetadata, payload.SessionData, log)
	if err := sess.Reauthenticate(ctx); err != nil {
		return domainerrors.AuthExhausted(err)
	}

	result := entity.ChatResult{Total: len(payload.Recipients)}
	for i, recipient := range payload.Recipients {
		convID, err := client.StartConversation(ctx, recipient)
		if err != nil {
			log.Warn("chat: failed to start conversation", "recipient", recipient, "error", err)
			continue
		}
		msg := payload.Messages[i%len(payload.Messages)]
		if err := client.SendDM(ctx, convID, msg); err != nil {
			log.Warn("chat: failed to send DM", "recipient", recipient, "error", err)
			continue
		}
		result.Sent++
		job.SetProgress((i + 1) * 100 / len(payload.Recipients))
	}
	job.Result = result
	return nil
}

func (d *Dispatcher) authFor(client service.SocialClient, meta entity.AccountMetadata, session entity.SessionData, log service.Logger) *sessionAuth {
	coord := auth.New(client, d.store, log)
	return &sessionAuth{coord: coord, accountID: meta.AccountID, session: session, meta: meta}
}
