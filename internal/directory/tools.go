package directory

import (
	"github.com/openai/openai-go"
)

// Tool names exposed to the reasoning engine.
const (
	ToolListClients      = "list_clients"
	ToolFindPolicies     = "find_policies"
	ToolVerifyCredential = "verify_credential"
)

// ToolDefinitions returns the tool capability set handed to the reasoning
// engine. The credential lookup itself is not a tool: verify_credential
// compares the supplied value in code and returns only the judgment, so the
// stored credential never enters the model context.
func ToolDefinitions() []openai.ChatCompletionToolParam {
	return []openai.ChatCompletionToolParam{
		{
			Function: openai.FunctionDefinitionParam{
				Name:        ToolListClients,
				Description: openai.String("Lista todos los clientes registrados con su nombre e ID. Úsala para ayudar al usuario a encontrar su nombre exacto en el sistema."),
				Parameters: openai.FunctionParameters{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		},
		{
			Function: openai.FunctionDefinitionParam{
				Name:        ToolFindPolicies,
				Description: openai.String("Busca las pólizas de un cliente por nombre (búsqueda parcial, sin distinguir mayúsculas). Solo devuelve datos si el usuario ya verificó su identidad para ese nombre."),
				Parameters: openai.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"nombre_cliente": map[string]interface{}{
							"type":        "string",
							"description": "Nombre del cliente a buscar; puede ser parcial.",
						},
					},
					"required": []string{"nombre_cliente"},
				},
			},
		},
		{
			Function: openai.FunctionDefinitionParam{
				Name:        ToolVerifyCredential,
				Description: openai.String("Verifica la contraseña que el usuario proporcionó para el nombre de cliente confirmado. Devuelve únicamente si coincide o no; nunca revela la contraseña almacenada."),
				Parameters: openai.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"nombre_cliente": map[string]interface{}{
							"type":        "string",
							"description": "Nombre confirmado del cliente.",
						},
						"contrasena": map[string]interface{}{
							"type":        "string",
							"description": "Contraseña proporcionada por el usuario.",
						},
					},
					"required": []string{"nombre_cliente", "contrasena"},
				},
			},
		},
	}
}
