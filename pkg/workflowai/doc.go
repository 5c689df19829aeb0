// Package workflowai runs typed agents on the WorkflowAI service.
//
// An agent is identified by an id and bound to a Go input type and a Go output
// type. Their JSON schemas are registered with the service on first use, and
// every run sends an input value and receives an output value decoded into the
// output type.
//
// Basic usage:
//
//	type CityInput struct {
//		City string `json:"city" required:"true"`
//	}
//
//	type CapitalOutput struct {
//		Country string `json:"country" required:"true"`
//		Capital string `json:"capital" required:"true"`
//	}
//
//	client, err := workflowai.NewClientFromEnv()
//	agent, err := workflowai.NewAgent[CityInput, CapitalOutput](client, "city-to-capital",
//		workflowai.WithInstructions("Return the country and capital of the city."))
//	run, err := agent.Run(ctx, CityInput{City: "Lyon"})
//	fmt.Println(run.Output.Capital)
//
// Streaming yields a Run per server event, each holding a more complete output:
//
//	for run, err := range agent.Stream(ctx, CityInput{City: "Lyon"}) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(run.Output.Capital)
//	}
//
// Agents can be given tools. When the model asks for a tool, the agent calls the
// matching Go function and replies with its result, until the model answers or
// the turn limit is reached.
package workflowai
