package rag

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Node kinds. Leaves carry chunk text; summaries carry abstractive text; the
// topmost node of a finished tree is re-kinded root.
const (
	NodeKindLeaf    = "leaf"
	NodeKindSummary = "summary"
	NodeKindRoot    = "root"
)

// Embedding owner kinds.
const (
	OwnerKindChunk    = "chunk"
	OwnerKindTreeNode = "tree_node"
)

type Document struct {
	ID        string         `gorm:"column:id;type:text;primaryKey" json:"id"`
	DatasetID string         `gorm:"column:dataset_id;type:text;not null;index:ix_documents_dataset_id" json:"dataset_id"`
	Source    string         `gorm:"column:source;type:text" json:"source,omitempty"`
	Checksum  string         `gorm:"column:checksum;type:text" json:"checksum,omitempty"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Document) TableName() string { return "documents" }

type Chunk struct {
	ID    string    `gorm:"column:id;type:text;primaryKey" json:"id"`
	DocID string    `gorm:"column:doc_id;type:text;not null;index:ix_chunks_doc_id;uniqueIndex:uq_chunks_doc_id_idx" json:"doc_id"`
	Doc   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocID;references:ID" json:"-"`

	Idx        int    `gorm:"column:idx;not null;uniqueIndex:uq_chunks_doc_id_idx" json:"idx"`
	Text       string `gorm:"column:text;type:text;not null" json:"text"`
	TokenCount int    `gorm:"column:token_count;not null;default:0" json:"token_count"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Chunk) TableName() string { return "chunks" }

type Tree struct {
	ID        string    `gorm:"column:id;type:text;primaryKey" json:"id"`
	DocID     string    `gorm:"column:doc_id;type:text;not null;index:ix_trees_doc_id" json:"doc_id"`
	Doc       *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocID;references:ID" json:"-"`
	DatasetID string    `gorm:"column:dataset_id;type:text;not null;index:ix_trees_dataset_id" json:"dataset_id"`

	// Build-time parameter snapshot.
	Params datatypes.JSON `gorm:"column:params;type:jsonb" json:"params,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Tree) TableName() string { return "trees" }

type TreeNode struct {
	ID     string `gorm:"column:id;type:text;primaryKey" json:"id"`
	TreeID string `gorm:"column:tree_id;type:text;not null;index:ix_tree_nodes_tree_id_level" json:"tree_id"`
	Tree   *Tree  `gorm:"constraint:OnDelete:CASCADE;foreignKey:TreeID;references:ID" json:"-"`

	Level int    `gorm:"column:level;not null;index:ix_tree_nodes_tree_id_level" json:"level"`
	Kind  string `gorm:"column:kind;type:text;not null" json:"kind"`
	Text  string `gorm:"column:text;type:text;not null" json:"text"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (TreeNode) TableName() string { return "tree_nodes" }

type TreeEdge struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ParentID string    `gorm:"column:parent_id;type:text;not null;index:ix_tree_edges_parent_id;uniqueIndex:uq_tree_edges_parent_id_child_id" json:"parent_id"`
	Parent   *TreeNode `gorm:"constraint:OnDelete:CASCADE;foreignKey:ParentID;references:ID" json:"-"`
	ChildID  string    `gorm:"column:child_id;type:text;not null;index:ix_tree_edges_child_id;uniqueIndex:uq_tree_edges_parent_id_child_id" json:"child_id"`
	Child    *TreeNode `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChildID;references:ID" json:"-"`
}

func (TreeEdge) TableName() string { return "tree_edges" }

// TreeNodeChunk links a node to every leaf chunk beneath it, rank preserving
// first-seen order of the union across the node's children.
type TreeNodeChunk struct {
	ID      uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	NodeID  string    `gorm:"column:node_id;type:text;not null;index:ix_tree_node_chunks_node_id;uniqueIndex:uq_tree_node_chunks_node_id_chunk_id" json:"node_id"`
	Node    *TreeNode `gorm:"constraint:OnDelete:CASCADE;foreignKey:NodeID;references:ID" json:"-"`
	ChunkID string    `gorm:"column:chunk_id;type:text;not null;index:ix_tree_node_chunks_chunk_id;uniqueIndex:uq_tree_node_chunks_node_id_chunk_id" json:"chunk_id"`
	Chunk   *Chunk    `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChunkID;references:ID" json:"-"`
	Rank    int       `gorm:"column:rank;not null" json:"rank"`
}

func (TreeNodeChunk) TableName() string { return "tree_node_chunks" }

// Embedding references its owner by (owner_type, owner_id) without a FK; the
// repos delete embeddings alongside their owners.
type Embedding struct {
	ID        string          `gorm:"column:id;type:text;primaryKey" json:"id"`
	DatasetID string          `gorm:"column:dataset_id;type:text;not null;index:ix_embeddings_dataset_id_owner,priority:1" json:"dataset_id"`
	OwnerType string          `gorm:"column:owner_type;type:text;not null;index:ix_embeddings_dataset_id_owner,priority:2;uniqueIndex:uq_embeddings_owner_type_owner_id" json:"owner_type"`
	OwnerID   string          `gorm:"column:owner_id;type:text;not null;index:ix_embeddings_dataset_id_owner,priority:3;uniqueIndex:uq_embeddings_owner_type_owner_id" json:"owner_id"`
	V         pgvector.Vector `gorm:"column:v;type:vector(1024)" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Embedding) TableName() string { return "embeddings" }

// EmbeddingID builds the deterministic embedding primary key.
func EmbeddingID(ownerKind, ownerID string) string {
	return ownerKind + "::" + ownerID
}
