package csvimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bookingadmin/libs/metrics"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/schedule"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/validate"
)

const DefaultCurrency = "EUR"

type Result struct {
	BatchID   string         `json:"batch_id"`
	DryRun    bool           `json:"dry_run"`
	Committed bool           `json:"committed"`
	Created   map[string]int `json:"created"`
	Errors    []RowError     `json:"errors"`
}

type Importer struct {
	store  *storage.Store
	logger *slog.Logger
	hash   func(string) (string, error)
}

func New(store *storage.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger, hash: validate.HashPassword}
}

var (
	errRollback = errors.New("import rolled back")
	// errStop ends the run after a statement failed and poisoned the transaction.
	errStop = errors.New("import stopped")
)

// Import applies the file in one transaction. Row problems are reported in
// Result.Errors and roll everything back; the returned error is reserved for
// infrastructure failures.
func (im *Importer) Import(ctx context.Context, r io.Reader, dryRun bool) (Result, error) {
	res := Result{BatchID: uuid.NewString(), DryRun: dryRun, Created: map[string]int{}, Errors: []RowError{}}

	p, err := parse(r)
	if err != nil {
		return res, fmt.Errorf("read csv: %w", err)
	}
	if len(p.errs) > 0 {
		res.Errors = append(res.Errors, p.errs...)
		im.count(res)
		return res, nil
	}

	err = im.store.InTx(ctx, func(tx *storage.Store) error {
		run := newRun(tx, im.hash, &res)
		for _, rw := range p.rows {
			if err := run.apply(ctx, rw); err != nil {
				if errors.Is(err, errStop) {
					return errRollback
				}
				return err
			}
		}
		if len(res.Errors) > 0 || dryRun {
			return errRollback
		}
		return tx.Emit(ctx, "import", res.BatchID, "admin.import.completed.v1", map[string]any{
			"batch_id": res.BatchID,
			"created":  res.Created,
		})
	})
	switch {
	case errors.Is(err, errRollback):
	case err != nil:
		return res, err
	default:
		res.Committed = true
	}
	im.count(res)
	im.logger.Info("csv import finished",
		"batch_id", res.BatchID,
		"dry_run", dryRun,
		"committed", res.Committed,
		"errors", len(res.Errors),
	)
	return res, nil
}

func (im *Importer) count(res Result) {
	result := "rolled_back"
	if res.Committed {
		result = "created"
	}
	for section, n := range res.Created {
		metrics.ImportRows.WithLabelValues(section, result).Add(float64(n))
	}
	for _, e := range res.Errors {
		metrics.ImportRows.WithLabelValues(e.Section, "error").Inc()
	}
}

type pointRef struct {
	id, orgID int64
	currency  string
}

type specialistRef struct {
	id, orgID int64
}

type dayRef struct {
	pointKey string
	shifts   [3]model.Shift
}

// run carries the keys created so far in one import.
type run struct {
	tx        *storage.Store
	hash      func(string) (string, error)
	res       *Result
	orgs      map[string]int64
	points    map[string]pointRef
	specs     map[string]specialistRef
	usernames map[string]int
	days      map[string][]dayRef
}

func newRun(tx *storage.Store, hash func(string) (string, error), res *Result) *run {
	return &run{
		tx:        tx,
		hash:      hash,
		res:       res,
		orgs:      map[string]int64{},
		points:    map[string]pointRef{},
		specs:     map[string]specialistRef{},
		usernames: map[string]int{},
		days:      map[string][]dayRef{},
	}
}

func (r *run) fail(rw row, format string, args ...any) {
	r.res.Errors = append(r.res.Errors, RowError{Line: rw.line, Section: string(rw.section), Message: fmt.Sprintf(format, args...)})
}

func (r *run) created(rw row) {
	r.res.Created[string(rw.section)]++
}

func (r *run) apply(ctx context.Context, rw row) error {
	switch rw.section {
	case SectionOrganisations:
		return r.organisation(ctx, rw)
	case SectionWorkingPoints:
		return r.workingPoint(ctx, rw)
	case SectionSpecialists:
		return r.specialist(ctx, rw)
	case SectionWorkingProgram:
		return r.workingDay(ctx, rw)
	case SectionServices:
		return r.service(ctx, rw)
	}
	return nil
}

// stored maps a failed insert: constraint hits become row errors and stop
// the run since the transaction can no longer be used.
func (r *run) stored(rw row, err error) error {
	if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrInvalidReference) {
		r.fail(rw, "rejected by database: %v", err)
		return errStop
	}
	return err
}

// credentials validates the username/password pair and returns the hash.
func (r *run) credentials(ctx context.Context, rw row) (username, hash string, ok bool, err error) {
	username = rw.get("username")
	password := rw.get("password")
	if username == "" {
		return "", "", true, nil
	}
	if err := validate.Username(username); err != nil {
		r.fail(rw, "%v", err)
		return "", "", false, nil
	}
	if line, dup := r.usernames[username]; dup {
		r.fail(rw, "username %q already used on line %d", username, line)
		return "", "", false, nil
	}
	taken, err := r.tx.UsernameTaken(ctx, username, "", 0)
	if err != nil {
		return "", "", false, err
	}
	if taken {
		r.fail(rw, "username %q already exists", username)
		return "", "", false, nil
	}
	if err := validate.Password(password); err != nil {
		r.fail(rw, "%v", err)
		return "", "", false, nil
	}
	hash, err = r.hash(password)
	if err != nil {
		return "", "", false, err
	}
	r.usernames[username] = rw.line
	return username, hash, true, nil
}

func (r *run) organisation(ctx context.Context, rw row) error {
	alias := strings.ToLower(rw.get("alias"))
	if err := validate.Alias(alias); err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	if err := validate.Required("company_name", rw.get("company_name")); err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	if err := validate.Email(rw.get("email")); err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	if _, dup := r.orgs[alias]; dup {
		r.fail(rw, "alias %q repeated in file", alias)
		return nil
	}
	switch _, err := r.tx.OrganisationIDByAlias(ctx, alias); {
	case err == nil:
		r.fail(rw, "alias %q already exists", alias)
		return nil
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}
	username, hash, ok, err := r.credentials(ctx, rw)
	if err != nil || !ok {
		return err
	}
	id, err := r.tx.CreateOrganisation(ctx, model.Organisation{
		Alias:       alias,
		CompanyName: rw.get("company_name"),
		Email:       rw.get("email"),
		Phone:       rw.get("phone"),
		Country:     rw.get("country"),
		Username:    username,
	}, hash)
	if err != nil {
		return r.stored(rw, err)
	}
	r.orgs[alias] = id
	r.created(rw)
	return nil
}

// organisationID resolves an alias created earlier in the file or already
// stored. ok is false when a row error was recorded.
func (r *run) organisationID(ctx context.Context, rw row) (int64, bool, error) {
	alias := strings.ToLower(rw.get("organisation_alias"))
	if alias == "" {
		r.fail(rw, "organisation_alias is required")
		return 0, false, nil
	}
	if id, ok := r.orgs[alias]; ok {
		return id, true, nil
	}
	id, err := r.tx.OrganisationIDByAlias(ctx, alias)
	if errors.Is(err, storage.ErrNotFound) {
		r.fail(rw, "unknown organisation %q", alias)
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	r.orgs[alias] = id
	return id, true, nil
}

func (r *run) workingPoint(ctx context.Context, rw row) error {
	key := rw.get("key")
	if err := validate.Required("key", key); err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	if _, dup := r.points[key]; dup {
		r.fail(rw, "working point key %q repeated in file", key)
		return nil
	}
	if err := validate.Required("name", rw.get("name")); err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	tz, err := validate.Timezone(rw.get("timezone"))
	if err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	currency, err := validate.Currency(rw.get("currency"), DefaultCurrency)
	if err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	orgID, ok, err := r.organisationID(ctx, rw)
	if err != nil || !ok {
		return err
	}
	username, hash, ok, err := r.credentials(ctx, rw)
	if err != nil || !ok {
		return err
	}
	id, err := r.tx.CreateWorkingPoint(ctx, model.WorkingPoint{
		OrganisationID: orgID,
		Name:           rw.get("name"),
		Address:        rw.get("address"),
		Country:        rw.get("country"),
		Language:       rw.get("language"),
		Currency:       currency,
		Timezone:       tz,
		Phone:          rw.get("phone"),
		BookingPhone:   rw.get("booking_phone"),
		LeadPersonName: rw.get("lead_person_name"),
		Username:       username,
	}, hash)
	if err != nil {
		return r.stored(rw, err)
	}
	r.points[key] = pointRef{id: id, orgID: orgID, currency: currency}
	r.created(rw)
	return nil
}

func (r *run) specialist(ctx context.Context, rw row) error {
	key := rw.get("key")
	if err := validate.Required("key", key); err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	if _, dup := r.specs[key]; dup {
		r.fail(rw, "specialist key %q repeated in file", key)
		return nil
	}
	if err := validate.Required("name", rw.get("name")); err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	if err := validate.Email(rw.get("email")); err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	orgID, ok, err := r.organisationID(ctx, rw)
	if err != nil || !ok {
		return err
	}
	username, hash, ok, err := r.credentials(ctx, rw)
	if err != nil || !ok {
		return err
	}
	id, err := r.tx.CreateSpecialist(ctx, model.Specialist{
		OrganisationID: orgID,
		Name:           rw.get("name"),
		Speciality:     rw.get("speciality"),
		Email:          rw.get("email"),
		Phone:          rw.get("phone"),
		Username:       username,
	}, hash)
	if err != nil {
		return r.stored(rw, err)
	}
	r.specs[key] = specialistRef{id: id, orgID: orgID}
	r.created(rw)
	return nil
}

func (r *run) workingDay(ctx context.Context, rw row) error {
	spec, ok := r.specs[rw.get("specialist_key")]
	if !ok {
		r.fail(rw, "unknown specialist_key %q", rw.get("specialist_key"))
		return nil
	}
	pointKey := rw.get("working_point_key")
	point, ok := r.points[pointKey]
	if !ok {
		r.fail(rw, "unknown working_point_key %q", pointKey)
		return nil
	}
	if spec.orgID != point.orgID {
		r.fail(rw, "specialist and working point belong to different organisations")
		return nil
	}
	day, err := strconv.Atoi(rw.get("day_of_week"))
	if err != nil {
		r.fail(rw, "%v", schedule.ErrInvalidDay)
		return nil
	}
	wd := model.WorkingDay{SpecialistID: spec.id, WorkingPointID: point.id, DayOfWeek: day}
	for i := range wd.Shifts {
		n := strconv.Itoa(i + 1)
		wd.Shifts[i] = model.Shift{Start: rw.get("shift" + n + "_start"), End: rw.get("shift" + n + "_end")}
	}
	if err := schedule.ValidateDay(wd); err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	wd.Shifts = schedule.Normalize(wd.Shifts)

	dayKey := rw.get("specialist_key") + "/" + strconv.Itoa(day)
	for _, other := range r.days[dayKey] {
		if other.pointKey == pointKey {
			r.fail(rw, "day %d repeated for this specialist and working point", day)
			return nil
		}
		if schedule.Overlaps(other.shifts, wd.Shifts) {
			r.fail(rw, "shifts overlap the specialist's program at working point %q", other.pointKey)
			return nil
		}
	}
	if err := r.tx.UpsertWorkingDay(ctx, wd); err != nil {
		return r.stored(rw, err)
	}
	r.days[dayKey] = append(r.days[dayKey], dayRef{pointKey: pointKey, shifts: wd.Shifts})
	r.created(rw)
	return nil
}

func (r *run) service(ctx context.Context, rw row) error {
	point, ok := r.points[rw.get("working_point_key")]
	if !ok {
		r.fail(rw, "unknown working_point_key %q", rw.get("working_point_key"))
		return nil
	}
	var specialistID int64
	if key := rw.get("specialist_key"); key != "" {
		spec, ok := r.specs[key]
		if !ok {
			r.fail(rw, "unknown specialist_key %q", key)
			return nil
		}
		if spec.orgID != point.orgID {
			r.fail(rw, "specialist and working point belong to different organisations")
			return nil
		}
		specialistID = spec.id
	}
	if err := validate.Required("name", rw.get("name")); err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	minutes, err := strconv.Atoi(rw.get("duration_minutes"))
	if err != nil {
		minutes = 0
	}
	if err := validate.Duration(minutes); err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	price, err := validate.Price(rw.get("price"))
	if err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	currency, err := validate.Currency(rw.get("currency"), point.currency)
	if err != nil {
		r.fail(rw, "%v", err)
		return nil
	}
	if _, err := r.tx.CreateService(ctx, model.Service{
		OrganisationID:  point.orgID,
		WorkingPointID:  point.id,
		SpecialistID:    specialistID,
		Name:            rw.get("name"),
		DurationMinutes: minutes,
		Price:           price,
		Currency:        currency,
	}); err != nil {
		return r.stored(rw, err)
	}
	r.created(rw)
	return nil
}
