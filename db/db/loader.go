package db

import (
	"github.com/google/uuid"
	"github.com/vikstrous/dataloadgen"
)

type dataLoaderKey string

const (
	DataLoaderKeyUserData dataLoaderKey = "user_data_loader"
)

// UserDataLoader batches user lookups made while rendering one response.
//
//	dataLoader, ok := c.Value(string(db.DataLoaderKeyUserData)).(*db.UserDataLoader)
type UserDataLoader struct {
	GetUser *dataloadgen.Loader[uuid.UUID, *UserAccount]
}

func NewUserDataLoader(dbWrapper UserDBWrapper) *UserDataLoader {
	return &UserDataLoader{
		GetUser: dataloadgen.NewMappedLoader(dbWrapper.DataLoaderGetUserList),
	}
}
