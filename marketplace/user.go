package marketplace

import (
	"context"
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/splitleasesharath/splitlease-sub012/bubblesync"
	"github.com/splitleasesharath/splitlease-sub012/config"
	"github.com/splitleasesharath/splitlease-sub012/models"
	"github.com/splitleasesharath/splitlease-sub012/utils"
)

var ErrDuplicateEmail = errors.New("email is already registered")

type CreateUserInput struct {
	Email     string `json:"email" binding:"required,email,max=255"`
	FirstName string `json:"first_name" binding:"required,max=100"`
	LastName  string `json:"last_name" binding:"required,max=100"`
	Phone     string `json:"phone" binding:"omitempty,max=40"`
	IsHost    bool   `json:"is_host"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// CreateUser registers an account and queues it for the legacy side.
func CreateUser(ctx context.Context, input CreateUserInput) (*models.User, error) {
	db := config.GetDB()

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	user := models.User{
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     input.Phone,
		IsHost:    input.IsHost,
	}
	if err := tx.Create(&user).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	_, err := bubblesync.Enqueue(tx, bubblesync.EnqueueInput{
		EntityType:    bubblesync.EntityTypeUser,
		EntityId:      entityId(user.ID),
		Operation:     bubblesync.OperationCreate,
		CorrelationId: correlationId,
		Snapshot:      snapshotOfUser(user),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	nudgeAfterCommit(ctx, correlationId)
	return &user, nil
}
