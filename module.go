package dryioc

import (
	"reflect"
)

// ModuleOption represents a registration action within a module.
type ModuleOption func(c *Container) error

// NewModule creates a new module with the given name and registrations.
// Modules are a way to group related service registrations together.
//
// Example:
//
//	var DatabaseModule = dryioc.NewModule("database",
//	    dryioc.AddSingleton(NewDatabaseConnection),
//	    dryioc.AddScoped(NewUserRepository),
//	    dryioc.AddScoped(NewOrderRepository),
//	)
//
//	var AppModule = dryioc.NewModule("app",
//	    DatabaseModule,
//	    dryioc.Add[Handler](NewHandler, dryioc.WithKey("admin")),
//	    dryioc.AddDecorator(reflect.TypeFor[Handler](), NewLoggingHandler),
//	)
func NewModule(name string, builders ...ModuleOption) ModuleOption {
	return func(c *Container) error {
		for _, builder := range builders {
			if builder == nil {
				continue
			}

			if err := builder(c); err != nil {
				return ModuleError{Module: name, Cause: err}
			}
		}

		return nil
	}
}

// AddModules applies the modules to the container in order, stopping at the first error.
func (c *Container) AddModules(modules ...ModuleOption) error {
	for _, m := range modules {
		if m == nil {
			continue
		}
		if err := m(c); err != nil {
			return err
		}
	}
	return nil
}

// Add creates a ModuleOption registering impl as the implementation of T.
func Add[T any](impl any, opts ...RegisterOption) ModuleOption {
	return func(c *Container) error {
		return Register[T](c, impl, opts...)
	}
}

// AddSingleton creates a ModuleOption registering a singleton under the type the
// constructor returns.
func AddSingleton(constructor any, opts ...RegisterOption) ModuleOption {
	return addWithReuse(constructor, Singleton, opts)
}

// AddScoped creates a ModuleOption registering a scoped service under the type the
// constructor returns.
func AddScoped(constructor any, opts ...RegisterOption) ModuleOption {
	return addWithReuse(constructor, Scoped, opts)
}

// AddTransient creates a ModuleOption registering a transient service under the type
// the constructor returns.
func AddTransient(constructor any, opts ...RegisterOption) ModuleOption {
	return addWithReuse(constructor, Transient, opts)
}

func addWithReuse(constructor any, reuse Reuse, opts []RegisterOption) ModuleOption {
	return func(c *Container) error {
		serviceType, err := producedType(constructor)
		if err != nil {
			return err
		}
		return c.Register(serviceType, constructor, append([]RegisterOption{WithReuse(reuse)}, opts...)...)
	}
}

// producedType returns the type a constructor or struct type registration produces.
func producedType(impl any) (reflect.Type, error) {
	if t, ok := impl.(reflect.Type); ok {
		return t, nil
	}
	info, err := analyzer.Analyze(impl)
	if err != nil {
		return nil, &ContainerError{Code: InvalidRegistration, Cause: err}
	}
	return info.Out, nil
}

// AddInstance creates a ModuleOption registering an existing value of T.
func AddInstance[T any](instance T, opts ...RegisterOption) ModuleOption {
	return func(c *Container) error {
		return RegisterInstance(c, instance, opts...)
	}
}

// AddDecorator creates a ModuleOption registering a decorator of serviceType.
func AddDecorator(serviceType reflect.Type, decorator any, opts ...RegisterOption) ModuleOption {
	return func(c *Container) error {
		return c.RegisterDecorator(serviceType, decorator, opts...)
	}
}
