// Package gen generates the Go code of a blaze model.
//
// The input is a model loaded by the load package: entities declared with
// their attributes and entity views declared with their fields. The output
// is a package holding:
//
//   - views.go: the view structs embedding view.State, with view struct
//     tags for mappings, updatability, cascades and fetch strategies.
//   - register.go: Metamodel, Views and NewManager, building the metamodel
//     of the entities and a view.Manager with the views registered.
//   - one subpackage per entity holding the entity name, the table, and the
//     attribute paths and columns as constants for criteria builders.
//
// # Usage
//
//	m, err := load.Load("model.yaml")
//	if err != nil {
//		return err
//	}
//	cfg, err := gen.NewConfig(
//		gen.WithTarget("./model"),
//		gen.WithPackage("github.com/acme/app/model"),
//	)
//	if err != nil {
//		return err
//	}
//	err = gen.Generate(ctx, m, cfg)
//
// Files are rendered with jennifer and written in parallel.
//
// # Error Handling
//
// Option errors are *ConfigError and match ErrMissingConfig. Failures while
// rendering or writing a file are *GenerationError and match
// ErrGenerationFailed.
package gen
