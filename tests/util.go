package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/growth"
	"github.com/trezcool/afya/core/user"
	"github.com/trezcool/afya/core/vaccination"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateChild stores a child of parent born on birthDate (YYYY-MM-DD).
func CreateChild(
	t *testing.T,
	repo child.Repository,
	parent user.User,
	name, birthDate string,
	sex growth.Sex,
	createdAt ...time.Time,
) child.Child {
	birth, err := core.ParseDate(birthDate)
	if err != nil {
		t.Fatalf("CreateChild() failed: %v", err)
	}
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	c, err := repo.CreateChild(context.Background(), child.Child{
		ParentID:     parent.ID,
		Name:         name,
		BirthDate:    birth,
		Sex:          sex,
		Vaccinations: vaccination.Record{},
		CreatedAt:    tstamp,
		UpdatedAt:    tstamp,
	})
	if err != nil {
		t.Fatalf("CreateChild() failed: %v", err)
	}
	return c
}

// NewChildService returns a child.Service over the embedded reference data.
func NewChildService(t *testing.T, repo child.Repository) child.Service {
	engine, err := growth.NewWHOEngine()
	if err != nil {
		t.Fatalf("NewWHOEngine() failed: %v", err)
	}
	evaluator := NewEvaluator(t)
	return child.NewService(repo, engine, evaluator)
}

func NewEvaluator(t *testing.T) *vaccination.Evaluator {
	schedule, err := vaccination.DefaultSchedule()
	if err != nil {
		t.Fatalf("DefaultSchedule() failed: %v", err)
	}
	evaluator, err := vaccination.NewEvaluator(schedule, vaccination.DefaultUpcomingWindow)
	if err != nil {
		t.Fatalf("NewEvaluator() failed: %v", err)
	}
	return evaluator
}
