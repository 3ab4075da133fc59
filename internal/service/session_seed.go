package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/prompt"
)

type curriculumReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Goals(ctx context.Context, courseIDs ...string) (map[string][]models.LearningGoal, error)
	FirstInstructor(ctx context.Context, courseID string) (*models.CourseInstructor, error)
}

type enrollmentContextReader interface {
	CompletedSpecificationIDs(ctx context.Context, enrollmentID string) ([]string, error)
	LatestProfile(ctx context.Context, enrollmentID string) (*models.Profile, error)
}

type studentProfileReader interface {
	GetOrCreate(ctx context.Context, userID string) (*models.StudentProfile, error)
}

// SeedBuilder composes the system messages that open every chat session.
type SeedBuilder struct {
	courses     curriculumReader
	enrollments enrollmentContextReader
	profiles    studentProfileReader
	catalog     *prompt.Catalog
	now         func() time.Time
}

// NewSeedBuilder constructs a SeedBuilder.
func NewSeedBuilder(courses curriculumReader, enrollments enrollmentContextReader, profiles studentProfileReader, catalog *prompt.Catalog) *SeedBuilder {
	if catalog == nil {
		catalog = prompt.Default()
	}
	return &SeedBuilder{courses: courses, enrollments: enrollments, profiles: profiles, catalog: catalog, now: time.Now}
}

// Build returns the ordered seed: banner, course info, curriculum, enrollment
// profile, intake summary, extra context. The two profile blocks are omitted
// when there is nothing to say.
func (b *SeedBuilder) Build(ctx context.Context, enrollment *models.Enrollment) ([]models.Message, error) {
	course, err := b.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		return nil, persistenceError(err, "failed to load course")
	}

	blocks := []string{b.catalog.Seed.Banner}

	instructor := b.catalog.Seed.DefaultInstructor
	first, err := b.courses.FirstInstructor(ctx, course.ID)
	switch {
	case err == nil && strings.TrimSpace(first.Name) != "":
		instructor = first.Name
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, persistenceError(err, "failed to load course instructor")
	}
	blocks = append(blocks, fmt.Sprintf("General Course Information:\n\nCourse: %s\nDescription: %s\nTeacher: %s",
		course.Name, course.Description, instructor))

	curriculum, err := b.curriculum(ctx, course.ID, enrollment.ID)
	if err != nil {
		return nil, err
	}
	blocks = append(blocks, "Course Curriculum:\n"+curriculum)

	profile, err := b.enrollments.LatestProfile(ctx, enrollment.ID)
	switch {
	case err == nil:
		blocks = append(blocks, "User Specific Information and Instructions:\n\n"+profile.Content)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, persistenceError(err, "failed to load enrollment profile")
	}

	student, err := b.profiles.GetOrCreate(ctx, enrollment.UserID)
	if err != nil {
		return nil, persistenceError(err, "failed to load student profile")
	}
	if student.IsCompleted && strings.TrimSpace(student.Summary) != "" {
		blocks = append(blocks, "Learner Intake Summary (preferences and goals):\n"+student.Summary)
	}

	blocks = append(blocks, "Extra context:\nCurrent date: "+b.now().Format("2006-01-02"))

	seed := make([]models.Message, 0, len(blocks))
	for _, block := range blocks {
		seed = append(seed, models.Message{Role: models.MessageRoleSystem, Content: block, IsVisible: false})
	}
	return seed, nil
}

func (b *SeedBuilder) curriculum(ctx context.Context, courseID, enrollmentID string) (string, error) {
	goals, err := b.courses.Goals(ctx, courseID)
	if err != nil {
		return "", persistenceError(err, "failed to load learning goals")
	}
	completedIDs, err := b.enrollments.CompletedSpecificationIDs(ctx, enrollmentID)
	if err != nil {
		return "", persistenceError(err, "failed to load checkpoints")
	}
	return renderCurriculum(goals[courseID], completedIDs), nil
}

// renderCurriculum numbers goals and letters their specifications.
func renderCurriculum(goals []models.LearningGoal, completedIDs []string) string {
	completed := make(map[string]struct{}, len(completedIDs))
	for _, id := range completedIDs {
		completed[id] = struct{}{}
	}

	var sb strings.Builder
	for i, goal := range goals {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, goal.Description)
		for j, spec := range goal.Specifications {
			fmt.Fprintf(&sb, "    %s. %s", specLabel(j), spec.Description)
			if _, ok := completed[spec.ID]; ok {
				sb.WriteString(" (COMPLETED)")
			}
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// specLabel returns a, b, ... z, aa, ab, ...
func specLabel(i int) string {
	label := ""
	for i >= 0 {
		label = string(rune('a'+i%26)) + label
		i = i/26 - 1
	}
	return label
}
