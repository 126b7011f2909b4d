package dryioc

import "context"

// Disposable is implemented by services that release resources when the scope or
// container owning them is closed.
//
// Example:
//
//	type DatabaseConnection struct {
//	    conn *sql.DB
//	}
//
//	func (dc *DatabaseConnection) Close() error {
//	    return dc.conn.Close()
//	}
type Disposable interface {
	Close() error
}

// DisposableWithContext is the context-aware variant of Disposable. Scopes close such
// services with the context the scope was opened with.
type DisposableWithContext interface {
	Close(ctx context.Context) error
}

func isDisposable(instance any) bool {
	switch instance.(type) {
	case Disposable, DisposableWithContext:
		return true
	}
	return false
}

func dispose(ctx context.Context, instance any) error {
	switch d := instance.(type) {
	case Disposable:
		return d.Close()
	case DisposableWithContext:
		return d.Close(ctx)
	}
	return nil
}
