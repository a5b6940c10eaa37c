package storage

import "github.com/blocktimefinancial/refractor-sub001/errs"

func newNotFoundErr() error {
	return errs.New(errs.KindNotFound, "transaction record not found")
}
