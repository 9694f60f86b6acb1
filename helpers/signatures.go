package helpers

import "strconv"

// SyntheticID is the module id under which helper code is attributed when it
// does not belong to any user source file. Source maps never list it.
const SyntheticID = "\x00typescript-helpers"

const (
	// ImportPrefix starts the import path of every shared helper module,
	// followed by the helper name.
	ImportPrefix = SyntheticID + "/"
	// ImportFilter matches ImportPrefix in esbuild OnResolve filters.
	ImportFilter = `^\x00typescript-helpers/`
	// Namespace is the esbuild namespace helper modules are loaded from.
	Namespace = "typescript-helpers"
)

// ImportStatement imports name from its shared helper module.
func ImportStatement(name string) string {
	return "import { " + name + " } from " + strconv.Quote(ImportPrefix+name) + ";"
}

// TypeScriptHelpers lists the runtime helpers tsc emits inline, in the form
//
//	var __extends = (this && this.__extends) || (function () { ... })();
var TypeScriptHelpers = []string{
	"__extends",
	"__assign",
	"__rest",
	"__decorate",
	"__param",
	"__esDecorate",
	"__runInitializers",
	"__propKey",
	"__setFunctionName",
	"__metadata",
	"__awaiter",
	"__generator",
	"__createBinding",
	"__exportStar",
	"__values",
	"__read",
	"__spread",
	"__spreadArrays",
	"__spreadArray",
	"__await",
	"__asyncGenerator",
	"__asyncDelegator",
	"__asyncValues",
	"__makeTemplateObject",
	"__setModuleDefault",
	"__importStar",
	"__importDefault",
	"__classPrivateFieldGet",
	"__classPrivateFieldSet",
	"__classPrivateFieldIn",
	"__addDisposableResource",
	"__disposeResources",
}

// ESBuildHelpers lists the helpers esbuild's transform API prepends when it
// lowers syntax for an older target.
var ESBuildHelpers = []string{
	"__defProp",
	"__defProps",
	"__getOwnPropDescs",
	"__getOwnPropSymbols",
	"__hasOwnProp",
	"__propIsEnum",
	"__knownSymbol",
	"__defNormalProp",
	"__spreadValues",
	"__spreadProps",
	"__objRest",
	"__decorateClass",
	"__publicField",
	"__accessCheck",
	"__privateGet",
	"__privateAdd",
	"__privateSet",
	"__privateMethod",
	"__async",
	"__await",
	"__asyncGenerator",
	"__forAwait",
	"__template",
}
