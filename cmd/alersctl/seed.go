package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/repository"
)

var seedNamespace = uuid.MustParse("6b9f3a52-8d1e-4c57-9a0e-2f4c1d7e8b30")

type curriculumFile struct {
	Courses []courseDoc `yaml:"courses"`
}

type courseDoc struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	ImageURL    string          `yaml:"image_url"`
	Instructors []instructorDoc `yaml:"instructors"`
	Goals       []goalDoc       `yaml:"goals"`
}

type instructorDoc struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Persona     string `yaml:"persona"`
}

type goalDoc struct {
	Description    string   `yaml:"description"`
	Specifications []string `yaml:"specifications"`
}

type courseSeed struct {
	Course      models.Course
	Goals       []models.LearningGoal
	Instructors []models.CourseInstructor
}

type curriculumWriter interface {
	SaveCurriculum(ctx context.Context, course *models.Course, goals []models.LearningGoal, instructors []models.CourseInstructor) error
}

var seedCmd = &cobra.Command{
	Use:   "seed-courses <file.yaml>",
	Short: "Create or update courses from a curriculum file",
	Long: `Reads a YAML curriculum file and upserts every course with its learning
goals, specifications and instructors. Ids are derived from names unless
given explicitly, so running the same file twice is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		seeds, err := parseCurriculum(f)
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			for _, s := range seeds {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d goals\n", s.Course.ID, s.Course.Name, len(s.Goals))
			}
			return nil
		}

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		return seedCourses(cmd.Context(), repository.NewCourseRepository(e.db), seeds, e.logger)
	},
}

func init() {
	seedCmd.Flags().Bool("dry-run", false, "print the parsed courses without writing")
	rootCmd.AddCommand(seedCmd)
}

func parseCurriculum(r io.Reader) ([]courseSeed, error) {
	var doc curriculumFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse curriculum: %w", err)
	}
	if len(doc.Courses) == 0 {
		return nil, fmt.Errorf("curriculum has no courses")
	}

	seeds := make([]courseSeed, 0, len(doc.Courses))
	seen := make(map[string]struct{}, len(doc.Courses))
	for i, c := range doc.Courses {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("course %d: name is required", i+1)
		}
		courseID := strings.TrimSpace(c.ID)
		if courseID == "" {
			courseID = stableID("course", name)
		} else if _, err := uuid.Parse(courseID); err != nil {
			return nil, fmt.Errorf("course %q: invalid id: %w", name, err)
		}
		if _, dup := seen[courseID]; dup {
			return nil, fmt.Errorf("course %q appears twice", name)
		}
		seen[courseID] = struct{}{}

		seed := courseSeed{Course: models.Course{
			ID:          courseID,
			Name:        name,
			Description: strings.TrimSpace(c.Description),
			ImageURL:    strings.TrimSpace(c.ImageURL),
		}}
		for gi, g := range c.Goals {
			goal := models.LearningGoal{
				ID:          stableID("goal", courseID, fmt.Sprint(gi)),
				CourseID:    courseID,
				Description: strings.TrimSpace(g.Description),
				Position:    gi + 1,
			}
			for si, spec := range g.Specifications {
				goal.Specifications = append(goal.Specifications, models.Specification{
					ID:             stableID("spec", goal.ID, fmt.Sprint(si)),
					LearningGoalID: goal.ID,
					Description:    strings.TrimSpace(spec),
					Position:       si + 1,
				})
			}
			seed.Goals = append(seed.Goals, goal)
		}
		for ii, in := range c.Instructors {
			seed.Instructors = append(seed.Instructors, models.CourseInstructor{
				ID:            stableID("instructor", courseID, fmt.Sprint(ii)),
				CourseID:      courseID,
				Name:          strings.TrimSpace(in.Name),
				Description:   strings.TrimSpace(in.Description),
				PersonaPrompt: strings.TrimSpace(in.Persona),
			})
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

func seedCourses(ctx context.Context, repo curriculumWriter, seeds []courseSeed, logger *zap.Logger) error {
	for i := range seeds {
		s := &seeds[i]
		if err := repo.SaveCurriculum(ctx, &s.Course, s.Goals, s.Instructors); err != nil {
			return fmt.Errorf("seed %q: %w", s.Course.Name, err)
		}
		logger.Info("course seeded", zap.String("course_id", s.Course.ID), zap.String("name", s.Course.Name), zap.Int("goals", len(s.Goals)))
	}
	return nil
}

// stableID derives a UUID from its position in the curriculum tree.
func stableID(parts ...string) string {
	return uuid.NewSHA1(seedNamespace, []byte(strings.Join(parts, "/"))).String()
}
