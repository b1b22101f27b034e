package common

// Training defaults, used when the experiment config leaves the
// corresponding field unset.
const DEFAULT_LOCAL_TRAIN_EPOCHS = 5
const DEFAULT_REPRESENTATION_EPOCHS = 1
const DEFAULT_FINETUNE_EPOCHS = 5

const DEFAULT_SGD_MOMENTUM = 0.5

// Algorithms
const ALGORITHM_FEDREP = "fedrep"
const ALGORITHM_FEDAVG = "fedavg"

// Model architectures
const MODEL_MLP_TWO_LAYER = "mlp"
const MODEL_MLP_THREE_LAYER = "mlp-deep"

// Dataset partition schemes
const PARTITION_IID = "iid"
const PARTITION_LABEL_SHARDS = "label-shards"

// Events
const ROUND_COMPLETED_EVENT_TYPE = "RoundCompleted"
const RUN_FINISHED_EVENT_TYPE = "RunFinished"

// Bytes per model parameter on the wire (float64).
const BYTES_PER_PARAMETER = 8
