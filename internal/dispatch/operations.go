package dispatch

// Operation names a unit of work selectable by a request.
type Operation string

const (
	OpExecuteCLI        Operation = "execute_cli"
	OpInjectMemory      Operation = "inject_memory"
	OpQueryDatabase     Operation = "query_database"
	OpRetrieveMemories  Operation = "retrieve_memories"
	OpLoadContext       Operation = "load_context"
	OpSaveContext       Operation = "save_context"
	OpCheckResources    Operation = "check_resources"
	OpAllocateResources Operation = "allocate_resources"
	OpRegisterUser      Operation = "register_user"
	OpAuthenticateUser  Operation = "authenticate_user"
)

// KnownOperations lists the fixed operation set in registration order.
func KnownOperations() []Operation {
	return []Operation{
		OpExecuteCLI,
		OpInjectMemory,
		OpQueryDatabase,
		OpRetrieveMemories,
		OpLoadContext,
		OpSaveContext,
		OpCheckResources,
		OpAllocateResources,
		OpRegisterUser,
		OpAuthenticateUser,
	}
}
