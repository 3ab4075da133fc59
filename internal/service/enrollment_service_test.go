package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/repository"
	appErrors "github.com/noah-isme/alers-api/pkg/errors"
)

const (
	testEnrollmentID    = "0b6f8f4e-9a57-4c57-9d0a-6d3c1f7b2a11"
	testSpecificationID = "5f0a2b8c-1d3e-4f5a-8b9c-0d1e2f3a4b5c"
)

type mockEnrollmentRepo struct {
	enrollments map[string]*models.Enrollment
	checkpoints map[string]*models.Checkpoint
	knownSpecs  map[string]bool
}

func newMockEnrollmentRepo() *mockEnrollmentRepo {
	return &mockEnrollmentRepo{
		enrollments: make(map[string]*models.Enrollment),
		checkpoints: make(map[string]*models.Checkpoint),
		knownSpecs:  map[string]bool{testSpecificationID: true},
	}
}

func (m *mockEnrollmentRepo) GetOrCreate(_ context.Context, userID, courseID string) (*models.Enrollment, bool, error) {
	key := userID + "/" + courseID
	if e, ok := m.enrollments[key]; ok {
		return e, false, nil
	}
	e := &models.Enrollment{ID: testEnrollmentID, UserID: userID, CourseID: courseID, StartingDate: time.Now()}
	m.enrollments[key] = e
	return e, true, nil
}

func (m *mockEnrollmentRepo) FindDetail(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	for _, e := range m.enrollments {
		if e.ID == id {
			return &models.EnrollmentDetail{Enrollment: *e}, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) CreateCheckpoint(_ context.Context, enrollmentID, specificationID string) (*models.Checkpoint, error) {
	if !m.knownSpecs[specificationID] {
		return nil, repository.ErrMissingReference
	}
	key := enrollmentID + "/" + specificationID
	if c, ok := m.checkpoints[key]; ok {
		return c, nil
	}
	c := &models.Checkpoint{ID: "k1", EnrollmentID: enrollmentID, SpecificationID: specificationID, CompletedAt: time.Now()}
	m.checkpoints[key] = c
	return c, nil
}

func TestEnrollIsGetOrCreate(t *testing.T) {
	repo := newMockEnrollmentRepo()
	svc := NewEnrollmentService(repo, embeddedCurriculum(), nil, nil)

	first, err := svc.Enroll(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := svc.Enroll(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Enrollment.ID, second.Enrollment.ID)
}

func TestEnrollUnknownCourse(t *testing.T) {
	svc := NewEnrollmentService(newMockEnrollmentRepo(), embeddedCurriculum(), nil, nil)

	_, err := svc.Enroll(context.Background(), "u1", "nope")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRecordCheckpointIsIdempotent(t *testing.T) {
	repo := newMockEnrollmentRepo()
	svc := NewEnrollmentService(repo, embeddedCurriculum(), nil, nil)
	_, err := svc.Enroll(context.Background(), "u1", "c1")
	require.NoError(t, err)

	req := models.CheckpointRequest{EnrollmentID: testEnrollmentID, SpecificationID: testSpecificationID}
	first, err := svc.RecordCheckpoint(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.RecordCheckpoint(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.checkpoints, 1)
}

func TestRecordCheckpointErrors(t *testing.T) {
	repo := newMockEnrollmentRepo()
	svc := NewEnrollmentService(repo, embeddedCurriculum(), nil, nil)

	_, err := svc.RecordCheckpoint(context.Background(), models.CheckpointRequest{EnrollmentID: "not-a-uuid", SpecificationID: testSpecificationID})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.RecordCheckpoint(context.Background(), models.CheckpointRequest{EnrollmentID: testEnrollmentID, SpecificationID: testSpecificationID})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Enroll(context.Background(), "u1", "c1")
	require.NoError(t, err)
	_, err = svc.RecordCheckpoint(context.Background(), models.CheckpointRequest{EnrollmentID: testEnrollmentID, SpecificationID: "7a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
