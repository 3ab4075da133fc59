package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/prompt"
)

type fakeCurriculum struct {
	course     *models.Course
	goals      []models.LearningGoal
	instructor *models.CourseInstructor
}

func (f *fakeCurriculum) FindByID(_ context.Context, id string) (*models.Course, error) {
	if f.course == nil || f.course.ID != id {
		return nil, sql.ErrNoRows
	}
	return f.course, nil
}

func (f *fakeCurriculum) Goals(_ context.Context, courseIDs ...string) (map[string][]models.LearningGoal, error) {
	return map[string][]models.LearningGoal{courseIDs[0]: f.goals}, nil
}

func (f *fakeCurriculum) FirstInstructor(_ context.Context, _ string) (*models.CourseInstructor, error) {
	if f.instructor == nil {
		return nil, sql.ErrNoRows
	}
	return f.instructor, nil
}

type fakeEnrollmentContext struct {
	completed []string
	profile   *models.Profile
}

func (f *fakeEnrollmentContext) CompletedSpecificationIDs(context.Context, string) ([]string, error) {
	return f.completed, nil
}

func (f *fakeEnrollmentContext) LatestProfile(context.Context, string) (*models.Profile, error) {
	if f.profile == nil {
		return nil, sql.ErrNoRows
	}
	return f.profile, nil
}

type fakeStudentProfiles struct {
	profile *models.StudentProfile
}

func (f *fakeStudentProfiles) GetOrCreate(_ context.Context, userID string) (*models.StudentProfile, error) {
	if f.profile == nil {
		f.profile = &models.StudentProfile{UserID: userID, LearningProgress: models.LearningProgress{}}
	}
	return f.profile, nil
}

func embeddedCurriculum() *fakeCurriculum {
	return &fakeCurriculum{
		course: &models.Course{ID: "c1", Name: "Embedded Systems", Description: "Talstelsels en poorten"},
		goals: []models.LearningGoal{
			{ID: "g1", Description: "Talstelsels", Specifications: []models.Specification{
				{ID: "sp1", Description: "Binair naar decimaal"},
				{ID: "sp2", Description: "Hexadecimaal"},
			}},
			{ID: "g2", Description: "Poorten", Specifications: []models.Specification{}},
		},
	}
}

func fixedSeedBuilder(courses *fakeCurriculum, enrollments *fakeEnrollmentContext, profiles *fakeStudentProfiles) *SeedBuilder {
	b := NewSeedBuilder(courses, enrollments, profiles, prompt.Default())
	b.now = func() time.Time { return time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC) }
	return b
}

func TestSeedForFreshEnrollmentHasFourBlocks(t *testing.T) {
	builder := fixedSeedBuilder(embeddedCurriculum(), &fakeEnrollmentContext{}, &fakeStudentProfiles{})

	seed, err := builder.Build(context.Background(), &models.Enrollment{ID: "e1", UserID: "u1", CourseID: "c1"})
	require.NoError(t, err)
	require.Len(t, seed, 4)

	assert.Equal(t, prompt.Default().Seed.Banner, seed[0].Content)
	assert.Equal(t, "General Course Information:\n\nCourse: Embedded Systems\nDescription: Talstelsels en poorten\nTeacher: AI Instructor", seed[1].Content)
	assert.Equal(t, "Course Curriculum:\n1. Talstelsels\n    a. Binair naar decimaal\n    b. Hexadecimaal\n2. Poorten", seed[2].Content)
	assert.Equal(t, "Extra context:\nCurrent date: 2024-05-17", seed[3].Content)
	for _, m := range seed {
		assert.Equal(t, models.MessageRoleSystem, m.Role)
		assert.False(t, m.IsVisible)
	}
}

func TestSeedWithProfilesHasSixBlocksInOrder(t *testing.T) {
	courses := embeddedCurriculum()
	courses.instructor = &models.CourseInstructor{Name: "Dr. Bit"}
	enrollments := &fakeEnrollmentContext{
		completed: []string{"sp2"},
		profile:   &models.Profile{Content: "Prefers worked examples"},
	}
	profiles := &fakeStudentProfiles{profile: &models.StudentProfile{IsCompleted: true, Summary: "• **Hobby:** gaming"}}

	seed, err := fixedSeedBuilder(courses, enrollments, profiles).Build(context.Background(), &models.Enrollment{ID: "e1", UserID: "u1", CourseID: "c1"})
	require.NoError(t, err)
	require.Len(t, seed, 6)

	prefixes := []string{
		"Initial System Message:",
		"General Course Information:",
		"Course Curriculum:",
		"User Specific Information and Instructions:",
		"Learner Intake Summary (preferences and goals):",
		"Extra context:",
	}
	for i, prefix := range prefixes {
		assert.True(t, strings.HasPrefix(seed[i].Content, prefix), "block %d: %q", i, seed[i].Content)
	}
	assert.Contains(t, seed[1].Content, "Teacher: Dr. Bit")
	assert.Contains(t, seed[2].Content, "b. Hexadecimaal (COMPLETED)")
	assert.NotContains(t, seed[2].Content, "Binair naar decimaal (COMPLETED)")
}

func TestSeedSkipsIncompleteIntake(t *testing.T) {
	profiles := &fakeStudentProfiles{profile: &models.StudentProfile{IsCompleted: false, Summary: "draft"}}

	seed, err := fixedSeedBuilder(embeddedCurriculum(), &fakeEnrollmentContext{}, profiles).Build(context.Background(), &models.Enrollment{ID: "e1", UserID: "u1", CourseID: "c1"})
	require.NoError(t, err)
	assert.Len(t, seed, 4)
}

func TestSpecLabel(t *testing.T) {
	assert.Equal(t, "a", specLabel(0))
	assert.Equal(t, "z", specLabel(25))
	assert.Equal(t, "aa", specLabel(26))
}
