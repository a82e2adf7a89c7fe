package users

import (
	"context"
	"errors"
	"testing"

	"github.com/bloodbank/bloodbank-backend/internal/audit"
	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/bloodbank/bloodbank-backend/pkg/db"
	"github.com/bloodbank/bloodbank-backend/pkg/db/dbtest"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureRecorder struct {
	entries []audit.Entry
}

func (c *captureRecorder) Record(_ context.Context, entry audit.Entry) {
	c.entries = append(c.entries, entry)
}

func newTestService(t *testing.T) (Service, *db.Client, *captureRecorder) {
	t.Helper()
	client := dbtest.NewClient(t)
	rec := &captureRecorder{}
	svc, err := NewService(ServiceParams{
		DB:             client,
		Repository:     NewRepository(client.DB()),
		PasswordConfig: config.PasswordConfig{},
		Recorder:       rec,
	})
	require.NoError(t, err)
	return svc, client, rec
}

func mustCreate(t *testing.T, svc Service, name, email string, role enums.UserRole) *UserDTO {
	t.Helper()
	u, err := svc.Create(context.Background(), CreateInput{
		FullName: name,
		Email:    email,
		Password: "correct-horse",
		Role:     role,
	})
	require.NoError(t, err)
	return u
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestCreateNormalizesAndHashes(t *testing.T) {
	svc, client, rec := newTestService(t)

	u := mustCreate(t, svc, " Dana Scully ", "  Dana@FBI.gov ", enums.UserRoleDoctor)
	assert.Equal(t, "dana@fbi.gov", u.Email)
	assert.Equal(t, "Dana Scully", u.FullName)
	assert.Equal(t, enums.UserRoleDoctor, u.Role)

	stored, err := NewRepository(client.DB()).FindByEmail(context.Background(), "DANA@fbi.gov")
	require.NoError(t, err)
	ok, err := security.VerifyPassword("correct-horse", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, enums.AuditActionUserCreate, rec.entries[0].Action)
}

func TestCreateDefaultsToCustomer(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := mustCreate(t, svc, "Walk In", "walkin@example.com", "")
	assert.Equal(t, enums.UserRoleCustomer, u.Role)
}

func TestCreateRejectsDuplicateAndInvalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustCreate(t, svc, "First", "dup@example.com", enums.UserRoleCustomer)

	_, err := svc.Create(context.Background(), CreateInput{FullName: "Second", Email: "DUP@example.com", Password: "long-enough"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = svc.Create(context.Background(), CreateInput{FullName: "", Email: "nope", Password: "short", Role: "root"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details := typed.Details().(map[string]any)
	assert.Len(t, details, 4)
}

func TestListFiltersByQueryAndRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustCreate(t, svc, "Alice Admin", "alice@example.com", enums.UserRoleAdmin)
	mustCreate(t, svc, "Bob Doctor", "bob@example.com", enums.UserRoleDoctor)
	mustCreate(t, svc, "Carol Customer", "carol@example.com", enums.UserRoleCustomer)

	all, err := svc.List(context.Background(), ListInput{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Total)

	byName, err := svc.List(context.Background(), ListInput{Query: "DOCTOR"})
	require.NoError(t, err)
	require.Len(t, byName.Items, 1)
	assert.Equal(t, "bob@example.com", byName.Items[0].Email)

	role := enums.UserRoleCustomer
	byRole, err := svc.List(context.Background(), ListInput{Role: &role})
	require.NoError(t, err)
	require.Len(t, byRole.Items, 1)
	assert.Equal(t, "carol@example.com", byRole.Items[0].Email)

	paged, err := svc.List(context.Background(), ListInput{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, paged.Items, 1)
}

func TestUpdateChangesFields(t *testing.T) {
	svc, client, rec := newTestService(t)
	u := mustCreate(t, svc, "Old Name", "rename@example.com", enums.UserRoleCustomer)

	name := "New Name"
	role := enums.UserRoleDoctor
	password := "brand-new-secret"
	updated, err := svc.Update(context.Background(), u.ID, UpdateInput{FullName: &name, Role: &role, Password: &password})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.FullName)
	assert.Equal(t, enums.UserRoleDoctor, updated.Role)

	stored, err := NewRepository(client.DB()).FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	ok, err := security.VerifyPassword(password, stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	last := rec.entries[len(rec.entries)-1]
	assert.Equal(t, enums.AuditActionUserUpdate, last.Action)
	assert.Equal(t, []string{"fullName", "role", "password"}, last.Details["changed"])
}

func TestUpdateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := mustCreate(t, svc, "Someone", "someone@example.com", enums.UserRoleCustomer)

	_, err := svc.Update(context.Background(), u.ID, UpdateInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	blank := "  "
	_, err = svc.Update(context.Background(), u.ID, UpdateInput{FullName: &blank})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	weak := "abc"
	_, err = svc.Update(context.Background(), u.ID, UpdateInput{Password: &weak})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	name := "Ghost"
	_, err = svc.Update(context.Background(), uuid.New(), UpdateInput{FullName: &name})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestLastAdminIsProtected(t *testing.T) {
	svc, _, _ := newTestService(t)
	admin := mustCreate(t, svc, "Only Admin", "only@example.com", enums.UserRoleAdmin)

	demote := enums.UserRoleDoctor
	_, err := svc.Update(context.Background(), admin.ID, UpdateInput{Role: &demote})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	err = svc.Delete(context.Background(), admin.ID, audit.Actor{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	second := mustCreate(t, svc, "Second Admin", "second@example.com", enums.UserRoleAdmin)
	_, err = svc.Update(context.Background(), admin.ID, UpdateInput{Role: &demote})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), second.ID, audit.Actor{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestDeleteSelfAndMissing(t *testing.T) {
	svc, _, rec := newTestService(t)
	admin := mustCreate(t, svc, "Admin", "admin@example.com", enums.UserRoleAdmin)
	doc := mustCreate(t, svc, "Doc", "doc@example.com", enums.UserRoleDoctor)

	err := svc.Delete(context.Background(), admin.ID, audit.Actor{ID: admin.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, svc.Delete(context.Background(), doc.ID, audit.Actor{ID: admin.ID}))
	assert.Equal(t, enums.AuditActionUserDelete, rec.entries[len(rec.entries)-1].Action)

	err = svc.Delete(context.Background(), doc.ID, audit.Actor{ID: admin.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

type recordingRevoker struct {
	revoked []string
	err     error
}

func (r *recordingRevoker) RevokeUser(_ context.Context, userID string) error {
	if r.err != nil {
		return r.err
	}
	r.revoked = append(r.revoked, userID)
	return nil
}

func newServiceWithSessions(t *testing.T, sessions SessionRevoker) Service {
	t.Helper()
	client := dbtest.NewClient(t)
	svc, err := NewService(ServiceParams{
		DB:         client,
		Repository: NewRepository(client.DB()),
		Sessions:   sessions,
	})
	require.NoError(t, err)
	return svc
}

func TestDeleteRevokesSessions(t *testing.T) {
	revoker := &recordingRevoker{}
	svc := newServiceWithSessions(t, revoker)
	admin := mustCreate(t, svc, "Admin", "admin@example.com", enums.UserRoleAdmin)
	doc := mustCreate(t, svc, "Doc", "doc@example.com", enums.UserRoleDoctor)

	require.NoError(t, svc.Delete(context.Background(), doc.ID, audit.Actor{ID: admin.ID}))
	assert.Equal(t, []string{doc.ID.String()}, revoker.revoked)
}

func TestDeleteRollsBackWhenRevokeFails(t *testing.T) {
	revoker := &recordingRevoker{err: errors.New("redis down")}
	svc := newServiceWithSessions(t, revoker)
	admin := mustCreate(t, svc, "Admin", "admin@example.com", enums.UserRoleAdmin)
	doc := mustCreate(t, svc, "Doc", "doc@example.com", enums.UserRoleDoctor)

	err := svc.Delete(context.Background(), doc.ID, audit.Actor{ID: admin.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	page, err := svc.List(context.Background(), ListInput{Query: "doc@example.com"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total, "user must survive a failed revoke")
}

func TestUpdateRevokesOnlyOnCredentialChange(t *testing.T) {
	revoker := &recordingRevoker{}
	svc := newServiceWithSessions(t, revoker)
	mustCreate(t, svc, "Admin", "admin@example.com", enums.UserRoleAdmin)
	doc := mustCreate(t, svc, "Doc", "doc@example.com", enums.UserRoleDoctor)

	name := "Dr. Doc"
	_, err := svc.Update(context.Background(), doc.ID, UpdateInput{FullName: &name})
	require.NoError(t, err)
	same := enums.UserRoleDoctor
	_, err = svc.Update(context.Background(), doc.ID, UpdateInput{Role: &same})
	require.NoError(t, err)
	assert.Empty(t, revoker.revoked)

	customer := enums.UserRoleCustomer
	_, err = svc.Update(context.Background(), doc.ID, UpdateInput{Role: &customer})
	require.NoError(t, err)
	password := "another-horse"
	_, err = svc.Update(context.Background(), doc.ID, UpdateInput{Password: &password})
	require.NoError(t, err)
	assert.Equal(t, []string{doc.ID.String(), doc.ID.String()}, revoker.revoked)
}
