package notebook

import (
	"context"
	"fmt"
)

// IntentKind is a closed set of high-level commands. A conversational or
// programmatic front end translates user requests into intents; the
// notebook maps each intent onto block operations and runs.
type IntentKind string

const (
	// IntentImportData adds a block that loads a dataset from a file in
	// the session working directory.
	IntentImportData IntentKind = "import_data"

	// IntentCleanData adds a block that normalizes a previously imported
	// dataset.
	IntentCleanData IntentKind = "clean_data"

	// IntentAddBlock adds a block with caller-provided source.
	IntentAddBlock IntentKind = "add_block"

	// IntentEditBlock replaces a block's source.
	IntentEditBlock IntentKind = "edit_block"

	// IntentDeleteBlock removes a block.
	IntentDeleteBlock IntentKind = "delete_block"

	// IntentExecute runs the whole project.
	IntentExecute IntentKind = "execute"
)

// Intent is one translated user command.
type Intent struct {
	Kind      IntentKind `json:"kind"`
	ProjectID string     `json:"project_id"`

	// BlockID selects the target for edit and delete intents.
	BlockID string `json:"block_id,omitempty"`

	// Source carries block code for add and edit intents.
	Source string `json:"source,omitempty"`

	// Dataset names the file for import intents and the variable for
	// clean intents.
	Dataset string `json:"dataset,omitempty"`

	// Ordinal positions a new block. Zero appends after existing blocks.
	Ordinal int `json:"ordinal,omitempty"`

	// Type of a new block; defaults to code.
	Type BlockType `json:"type,omitempty"`
}

// IntentOutcome reports what an intent did.
type IntentOutcome struct {
	Kind    IntentKind `json:"kind"`
	BlockID string     `json:"block_id,omitempty"`
	Run     *RunResult `json:"run,omitempty"`
}

// ApplyIntent executes one intent against the notebook. Intents that
// create blocks return the new block's ID; the execute intent returns the
// run result.
func (n *Notebook) ApplyIntent(ctx context.Context, executor *Executor, intent Intent) (*IntentOutcome, error) {
	if intent.ProjectID == "" {
		return nil, fmt.Errorf("intent is missing a project id")
	}
	outcome := &IntentOutcome{Kind: intent.Kind}

	switch intent.Kind {
	case IntentImportData:
		if intent.Dataset == "" {
			return nil, fmt.Errorf("import_data intent requires a dataset")
		}
		block, err := n.CreateBlock(ctx, &Block{
			ProjectID: intent.ProjectID,
			Type:      BlockTypeCode,
			Ordinal:   n.nextOrdinal(ctx, intent.ProjectID, intent.Ordinal),
			Source:    importDataSource(intent.Dataset),
		})
		if err != nil {
			return nil, err
		}
		outcome.BlockID = block.ID

	case IntentCleanData:
		variable := intent.Dataset
		if variable == "" {
			variable = "data"
		}
		block, err := n.CreateBlock(ctx, &Block{
			ProjectID: intent.ProjectID,
			Type:      BlockTypeCode,
			Ordinal:   n.nextOrdinal(ctx, intent.ProjectID, intent.Ordinal),
			Source:    cleanDataSource(variable),
		})
		if err != nil {
			return nil, err
		}
		outcome.BlockID = block.ID

	case IntentAddBlock:
		blockType := intent.Type
		if blockType == "" {
			blockType = BlockTypeCode
		}
		block, err := n.CreateBlock(ctx, &Block{
			ProjectID: intent.ProjectID,
			Type:      blockType,
			Ordinal:   n.nextOrdinal(ctx, intent.ProjectID, intent.Ordinal),
			Source:    intent.Source,
		})
		if err != nil {
			return nil, err
		}
		outcome.BlockID = block.ID

	case IntentEditBlock:
		if intent.BlockID == "" {
			return nil, fmt.Errorf("edit_block intent requires a block id")
		}
		if _, err := n.EditBlock(ctx, intent.BlockID, intent.Source); err != nil {
			return nil, err
		}
		outcome.BlockID = intent.BlockID

	case IntentDeleteBlock:
		if intent.BlockID == "" {
			return nil, fmt.Errorf("delete_block intent requires a block id")
		}
		if err := n.DeleteBlock(ctx, intent.BlockID); err != nil {
			return nil, err
		}
		outcome.BlockID = intent.BlockID

	case IntentExecute:
		if executor == nil {
			return nil, fmt.Errorf("execute intent requires an executor")
		}
		run, err := executor.ExecuteProject(ctx, intent.ProjectID)
		if err != nil {
			return nil, err
		}
		outcome.Run = run

	default:
		return nil, fmt.Errorf("unknown intent kind %q", intent.Kind)
	}
	return outcome, nil
}

// nextOrdinal returns the requested ordinal, or one past the project's
// last block when unset.
func (n *Notebook) nextOrdinal(ctx context.Context, projectID string, requested int) int {
	if requested > 0 {
		return requested
	}
	blocks, err := n.repository.ListBlocks(ctx, projectID)
	if err != nil || len(blocks) == 0 {
		return 1
	}
	return blocks[len(blocks)-1].Ordinal + 1
}

// importDataSource generates a block that reads a JSON dataset from the
// session working directory into the data variable.
func importDataSource(dataset string) string {
	return fmt.Sprintf("raw := string(os.read_file(%q))\ndata := json.unmarshal(raw)\nprint(\"imported\", %q)", dataset, dataset)
}

// cleanDataSource generates a block that drops nil entries from a list
// dataset.
func cleanDataSource(variable string) string {
	return fmt.Sprintf("cleaned := %s.filter(func(row) { return row != nil })\nprint(\"cleaned rows:\", len(cleaned))", variable)
}
