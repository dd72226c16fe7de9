// Command generate-schema writes the JSON schema of the seqstore
// configuration file, for editor completion and CI validation of configs.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/marmos91/seqstore/pkg/config"
)

func main() {
	output := flag.String("o", "config.schema.json", "Output file (- for stdout)")
	flag.Parse()

	// Field names follow the mapstructure tags used by the loader
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "seqstore Configuration"
	schema.Description = "Configuration schema for the seqstore store, forwarder and metrics endpoint"
	schema.Version = "1.0.0"

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling schema: %v\n", err)
		os.Exit(1)
	}

	if *output == "-" {
		_, _ = os.Stdout.Write(append(schemaJSON, '\n'))
		return
	}

	if err := os.WriteFile(*output, schemaJSON, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", *output)
}
