package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/shulehub/discipline-api/internal/models"
	"github.com/shulehub/discipline-api/internal/repository"
	"github.com/shulehub/discipline-api/internal/stream"
	"github.com/shulehub/discipline-api/pkg/config"
	"github.com/shulehub/discipline-api/pkg/database"
)

const usage = `schoolctl - maintenance commands for the discipline tracker

Usage:
  schoolctl seed           Seed a superuser admin account
  schoolctl assign-stream  Assign a stream to a teacher by email
  schoolctl teachers       List teachers with their streams
  schoolctl students       List students in a stream
  schoolctl streams        Print the stream catalogue
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "streams" {
		for _, s := range stream.Catalogue() {
			fmt.Println(s)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := repository.NewUserRepository(db)
	profiles := repository.NewProfileRepository(db)
	students := repository.NewStudentRepository(db)

	switch cmd {
	case "seed":
		err = seed(ctx, args, users)
	case "assign-stream":
		err = assignStream(ctx, args, users, profiles)
	case "teachers":
		err = listTeachers(ctx, users, profiles)
	case "students":
		err = listStudents(ctx, args, students)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

// seed creates a superuser admin with the manage-reports grant. It is
// idempotent: an existing account with the same email only gets the grant
// refreshed.
func seed(ctx context.Context, args []string, users *repository.UserRepository) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	email := fs.String("email", "admin@school.local", "admin email")
	name := fs.String("name", "System Administrator", "admin full name")
	password := fs.String("password", "", "admin password (required)")
	fs.Parse(args) //nolint:errcheck

	if *password == "" {
		return fmt.Errorf("password is required")
	}

	existing, err := users.FindByEmail(ctx, *email)
	if err == nil {
		if err := users.GrantPermission(ctx, existing.ID, models.PermManageReports); err != nil {
			return err
		}
		fmt.Printf("account %s already exists, grant refreshed\n", *email)
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        strings.ToLower(*email),
		PasswordHash: string(hash),
		FullName:     *name,
		Role:         models.RoleAdmin,
		Superuser:    true,
		Staff:        true,
		Active:       true,
	}
	if err := users.Create(ctx, user); err != nil {
		return err
	}
	if err := users.GrantPermission(ctx, user.ID, models.PermManageReports); err != nil {
		return err
	}
	fmt.Printf("superuser %s created (%s)\n", *email, user.ID)
	return nil
}

// assignStream moves a teacher to a stream. Accepts the canonical name,
// the bare legacy form and two-letter codes like 4E.
func assignStream(ctx context.Context, args []string, users *repository.UserRepository, profiles *repository.ProfileRepository) error {
	fs := flag.NewFlagSet("assign-stream", flag.ExitOnError)
	email := fs.String("email", "", "teacher email (required)")
	rawStream := fs.String("stream", "", "stream name or code, e.g. 'Form 4 East' or '4E' (required)")
	fs.Parse(args) //nolint:errcheck

	if *email == "" || *rawStream == "" {
		return fmt.Errorf("email and stream are required")
	}

	canonical := stream.FromCode(*rawStream)
	if !stream.IsCanonical(canonical) {
		return fmt.Errorf("unknown stream %q", *rawStream)
	}

	user, err := users.FindByEmail(ctx, *email)
	if err != nil {
		return fmt.Errorf("find teacher: %w", err)
	}
	if user.Role != models.RoleTeacher {
		return fmt.Errorf("%s is a %s, not a teacher", *email, user.Role)
	}

	holder, err := profiles.StreamAssignedTo(ctx, stream.MatchKeys(canonical), user.ID)
	if err == nil {
		fmt.Printf("warning: %s is already assigned to %s\n", canonical, holder.FullName)
	}

	profile, err := profiles.FindTeacherByUserID(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("load teacher profile: %w", err)
	}
	if err := profiles.UpdateTeacherStream(ctx, profile.ID, canonical); err != nil {
		return err
	}
	fmt.Printf("%s assigned to %s\n", *email, canonical)
	return nil
}

func listTeachers(ctx context.Context, users *repository.UserRepository, profiles *repository.ProfileRepository) error {
	role := models.RoleTeacher
	teachers, _, err := users.List(ctx, models.UserFilter{Role: &role, PageSize: 500})
	if err != nil {
		return err
	}
	for _, t := range teachers {
		assigned := "-"
		if profile, err := profiles.FindTeacherByUserID(ctx, t.ID); err == nil {
			assigned = stream.Normalize(profile.Stream)
		}
		fmt.Printf("%-36s  %-30s  %s\n", t.ID, t.Email, assigned)
	}
	return nil
}

func listStudents(ctx context.Context, args []string, students *repository.StudentRepository) error {
	fs := flag.NewFlagSet("students", flag.ExitOnError)
	rawStream := fs.String("stream", "", "stream name or code (required)")
	fs.Parse(args) //nolint:errcheck

	canonical := stream.FromCode(*rawStream)
	if !stream.IsCanonical(canonical) {
		return fmt.Errorf("unknown stream %q", *rawStream)
	}

	list, _, err := students.List(ctx, models.StudentFilter{
		StreamKeys: stream.MatchKeys(canonical),
		PageSize:   500,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s (%d students)\n", canonical, len(list))
	for _, s := range list {
		fmt.Printf("%-36s  %-10s  %s\n", s.ID, s.AdmissionNumber, s.Name)
	}
	return nil
}
